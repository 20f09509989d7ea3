// Package importer seeds the database with users, feeds, and
// subscriptions from a CSV file.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"reedy/reader/internal/database"
	"reedy/reader/internal/models"
)

// Importer handles the subscription import process
type Importer struct {
	db *database.DB
}

// NewImporter creates a new subscription importer
func NewImporter(db *database.DB) *Importer {
	return &Importer{db: db}
}

// ImportFeeds imports subscriptions from a CSV file. Each row names a
// user (by domain), a feed URL, the feed type, and an optional display
// name; users and feeds are created on first sight and reused after.
func (i *Importer) ImportFeeds(ctx context.Context, csvPath string) error {
	log.Info().Str("csv", csvPath).Msg("Starting subscription import")

	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	err = i.parseAndImport(ctx, f)
	if err != nil {
		return fmt.Errorf("failed to import subscriptions: %w", err)
	}

	log.Info().Msg("Import completed successfully")
	return nil
}

func (i *Importer) parseAndImport(ctx context.Context, csvData io.Reader) error {
	reader := csv.NewReader(csvData)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return err
	}

	log.Debug().Strs("header", header).Msg("CSV header read")

	userIdx := findColumnIndex(header, "user")
	urlIdx := findColumnIndex(header, "url")
	typeIdx := findColumnIndex(header, "type")
	nameIdx := findColumnIndex(header, "name")

	if userIdx < 0 || urlIdx < 0 || typeIdx < 0 {
		return fmt.Errorf("CSV header must contain 'user', 'url', and 'type' columns")
	}

	lineCount := 1 // Header was already read
	successCount := 0
	var importErrors []string

	for {
		lineCount++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(err).Int("line", lineCount).Msg("Error reading CSV line")
			importErrors = append(importErrors, fmt.Sprintf("line %d: %v", lineCount, err))
			continue
		}

		if len(record) == 0 || (len(record) == 1 && record[0] == "") {
			continue
		}

		domain := safeGetValue(record, userIdx)
		feedURL := safeGetValue(record, urlIdx)
		feedType := models.FeedType(safeGetValue(record, typeIdx))
		name := safeGetValue(record, nameIdx)

		logger := log.With().
			Int("line", lineCount).
			Str("user", domain).
			Str("url", feedURL).
			Logger()

		if err := i.importRow(ctx, domain, feedURL, feedType, name); err != nil {
			logger.Warn().Err(err).Msg("Skipping row")
			importErrors = append(importErrors, fmt.Sprintf("line %d: %v", lineCount, err))
			continue
		}

		successCount++
		logger.Debug().Msg("Subscription imported")
	}

	log.Info().
		Int("total", lineCount-1).
		Int("success", successCount).
		Int("errors", len(importErrors)).
		Msg("Import summary")

	fmt.Printf("Imported %d subscriptions successfully\n", successCount)
	if len(importErrors) > 0 {
		fmt.Printf("Encountered %d errors:\n", len(importErrors))
		for _, err := range importErrors {
			fmt.Printf("  - %s\n", err)
		}
	}

	return nil
}

func (i *Importer) importRow(ctx context.Context, domain, feedURL string, feedType models.FeedType, name string) error {
	if domain == "" {
		return fmt.Errorf("empty user domain")
	}
	if feedURL == "" {
		return fmt.Errorf("empty feed URL")
	}
	if feedType != models.FeedTypeXML && feedType != models.FeedTypeHTML {
		return fmt.Errorf("unknown feed type %q", feedType)
	}

	user, err := i.db.GetOrCreateUser(ctx, domain, "https://"+domain+"/")
	if err != nil {
		return err
	}

	feed, err := i.db.GetFeedByURL(ctx, feedURL)
	if err != nil {
		return err
	}
	if feed == nil {
		feed = models.NewFeed(name, originOf(feedURL), feedURL, feedType)
		if err := i.db.InsertFeed(ctx, feed); err != nil {
			return err
		}
	}

	sub := &models.Subscription{
		UserID: user.ID,
		FeedID: feed.ID,
		Name:   name,
	}
	return i.db.InsertSubscription(ctx, sub)
}

// originOf derives the site origin from a feed URL.
func originOf(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return feedURL
	}
	return u.Scheme + "://" + u.Host
}

func findColumnIndex(header []string, columnName string) int {
	for i, col := range header {
		if strings.EqualFold(col, columnName) {
			return i
		}
	}
	return -1
}

// safeGetValue returns the trimmed value at index, or "" when the index
// is out of bounds.
func safeGetValue(record []string, index int) string {
	if index >= 0 && index < len(record) {
		return strings.TrimSpace(record[index])
	}
	return ""
}
