package pricedata

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dca-grid-backtest-go/internal/logger"

	"github.com/adshao/go-binance/v2"
)

// KlineDownloader fetches daily klines from Binance into CSV cache files
// that LoadCSV can read back.
type KlineDownloader struct {
	client *binance.Client
}

// NewKlineDownloader creates a downloader. The public kline endpoint needs
// no API key.
func NewKlineDownloader() *KlineDownloader {
	return &KlineDownloader{
		client: binance.NewClient("", ""),
	}
}

// DownloadDailyKlines downloads daily klines for the symbol and range into
// filePath. An existing file is treated as a cache and left untouched.
func (d *KlineDownloader) DownloadDailyKlines(ctx context.Context, symbol, filePath string, startTime, endTime time.Time) error {
	if _, err := os.Stat(filePath); !os.IsNotExist(err) {
		logger.S().Infof("Using cached data: %s", filePath)
		return nil
	}

	logger.S().Infof("Downloading %s daily klines from %s to %s...",
		symbol, startTime.Format("2006-01-02"), endTime.Format("2006-01-02"))

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", filePath, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"open_time", "open", "high", "low", "close", "volume"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for t := startTime; t.Before(endTime); {
		klines, err := d.client.NewKlinesService().
			Symbol(symbol).
			Interval("1d").
			StartTime(t.UnixMilli()).
			EndTime(endTime.UnixMilli()).
			Limit(1000).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to download klines: %w", err)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			record := []string{
				fmt.Sprintf("%d", k.OpenTime),
				k.Open,
				k.High,
				k.Low,
				k.Close,
				k.Volume,
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write CSV record: %w", err)
			}
		}

		t = time.UnixMilli(klines[len(klines)-1].CloseTime + 1)
		logger.S().Debugf("Downloaded %s data up to %s", symbol, t.Format("2006-01-02"))
		time.Sleep(200 * time.Millisecond) // stay under the public rate limit
	}

	logger.S().Infof("Saved klines to %s", filePath)
	return nil
}
