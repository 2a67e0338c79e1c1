package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityCore/internal/config"
	"liquidityCore/internal/events"
	"liquidityCore/internal/model"
	"liquidityCore/internal/storage"
)

type recordWriter interface {
	Write(value interface{}) error
}

type decodeStats struct {
	total, decoded, skipped, failed int
}

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	decoder, err := events.NewPairDecoder(events.DecoderConfig{Topic0Map: cfg.Topic0Map})
	if err != nil {
		return err
	}

	cache := events.NewPoolMetaCache()
	if cfg.Pools != "" {
		if err := seedPoolMeta(cfg.Pools, cache); err != nil {
			return err
		}
	}
	decodeCtx := events.DecodeContext{
		PoolMetaCache: cache,
		Logger:        logger,
	}

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	outWriter, err := storage.NewJSONLWriter(cfg.Out, false)
	if err != nil {
		return err
	}
	defer outWriter.Close()

	errWriter, err := storage.NewJSONLWriter(cfg.Errors, false)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	logger.Info("decode start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.Int("seeded_pools", cache.Len()),
	)

	stats, err := decodeLogs(ctx, inputFile, decoder, decodeCtx, outWriter, errWriter)
	if err != nil {
		return err
	}

	logger.Info("decode complete",
		zap.Int("total", stats.total),
		zap.Int("decoded", stats.decoded),
		zap.Int("skipped", stats.skipped),
		zap.Int("failed", stats.failed),
		zap.Int("pools", cache.Len()),
	)

	return nil
}

func decodeLogs(ctx context.Context, input io.Reader, decoder events.Decoder, decodeCtx events.DecodeContext, out, errs recordWriter) (decodeStats, error) {
	var stats decodeStats

	scanner := bufio.NewScanner(input)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var lineNo uint64
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.total++

		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			stats.failed++
			writeDecodeError(errs, model.DecodeError{Line: lineNo, Error: err.Error()})
			continue
		}
		if len(record.Topics) == 0 {
			stats.failed++
			writeDecodeError(errs, decodeErrorFromRecord(lineNo, record, fmt.Errorf("missing topic0")))
			continue
		}

		if !decoder.CanDecode(record.Topics[0]) {
			stats.skipped++
			continue
		}

		event, err := decoder.Decode(record, decodeCtx)
		if err != nil {
			stats.failed++
			writeDecodeError(errs, decodeErrorFromRecord(lineNo, record, err))
			continue
		}

		if err := out.Write(event); err != nil {
			return stats, err
		}
		stats.decoded++
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}
	return stats, nil
}

// seedPoolMeta loads pool metadata from a pools JSONL. Later lines win.
func seedPoolMeta(path string, cache *events.PoolMetaCache) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open pools: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var pool model.Pool
		if err := json.Unmarshal(line, &pool); err != nil {
			return fmt.Errorf("parse pool: %w", err)
		}
		if !common.IsHexAddress(pool.Address) {
			return fmt.Errorf("invalid pool address: %s", pool.Address)
		}
		cache.Set(common.HexToAddress(pool.Address), model.PoolMeta{
			Token0: pool.Token0,
			Token1: pool.Token1,
			FeeBps: pool.FeeBps,
		})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan pools: %w", err)
	}
	return nil
}

func decodeErrorFromRecord(lineNo uint64, record model.LogRecord, err error) model.DecodeError {
	topic0 := ""
	if len(record.Topics) > 0 {
		topic0 = record.Topics[0]
	}

	return model.DecodeError{
		Line:        lineNo,
		ChainID:     record.ChainID,
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		LogIndex:    record.LogIndex,
		Address:     record.Address,
		Topic0:      topic0,
		Error:       err.Error(),
	}
}

func writeDecodeError(writer recordWriter, errRecord model.DecodeError) {
	if writer == nil {
		return
	}
	_ = writer.Write(errRecord)
}
