package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"chat-relay/internal/payload"
	"chat-relay/internal/relay"
	"chat-relay/internal/storage"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

var (
	ErrInvalidImport = errors.New("import must be a JSON array of messages")
	ErrInvalidSent   = errors.New("`sent` must be an RFC 3339 timestamp")
)

// Importer bulk loads messages, keeping their sent time when set
type Importer interface {
	CopyMessages(ctx context.Context, msgs []storage.Message) (int64, error)
}

// Import reads a JSON array of {body, chat, user, sent?} objects from r and copies them to dst.
// Every message is checked by the relay rules first; one bad message rejects the whole import.
func Import(ctx context.Context, logger *zap.SugaredLogger, dst Importer, r io.Reader) (int64, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("import history: %w", err)
	}

	var parser fastjson.Parser
	v, err := parser.ParseBytes(raw)
	if err != nil || v.Type() != fastjson.TypeArray {
		return 0, ErrInvalidImport
	}

	items, _ := v.Array()
	msgs := make([]storage.Message, 0, len(items))
	for i, item := range items {
		m, err := relay.ValidateValue(item)
		if err != nil {
			return 0, fmt.Errorf("import message %d: %w", i, err)
		}

		if field := item.Get("sent"); payload.Present(field) {
			s, ok := payload.String(field)
			if !ok {
				return 0, fmt.Errorf("import message %d: %w", i, ErrInvalidSent)
			}
			sent, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return 0, fmt.Errorf("import message %d: %w", i, ErrInvalidSent)
			}
			m.Sent = sent.UTC()
		}

		msgs = append(msgs, m)
	}

	if len(msgs) == 0 {
		logger.Info("History import is empty")
		return 0, nil
	}

	n, err := dst.CopyMessages(ctx, msgs)
	if err != nil {
		return 0, fmt.Errorf("import history: %w", err)
	}

	logger.Infof("Imported %d messages", n)

	return n, nil
}

// ImportFile runs Import on the file at path
func ImportFile(ctx context.Context, logger *zap.SugaredLogger, dst Importer, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("import history: %w", err)
	}
	defer f.Close()

	return Import(ctx, logger, dst, f)
}
