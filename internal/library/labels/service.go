package labels

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"LIBRA-backend/internal/library/circulation"
)

// ===== Error model =====
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string      { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return 400
		case CodeNotFound:
			return 404
		default:
			return 500
		}
	}
	return 500
}

const ErrorMessageNoPrintJob = "印刷する資料が選択されていないため、ラベルを出力できません。"

// ItemSource is the slice of the circulation service labels need.
type ItemSource interface {
	GetItem(ctx context.Context, id string) (*circulation.Item, error)
}

type Service struct {
	items ItemSource
}

func NewService(items ItemSource) *Service { return &Service{items: items} }

// Export is the label sheet for the requested items plus the charset it was
// written in.
type Export struct {
	Data     []byte
	Encoding Encoding
	Count    int
}

func parseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "shift_jis", "sjis", "cp932":
		return EncodingShiftJIS, nil
	case "utf-8", "utf8":
		return EncodingUTF8, nil
	default:
		return "", ErrInvalid(fmt.Sprintf("unsupported encoding %q", s))
	}
}

func (s *Service) Export(ctx context.Context, req ExportRequest) (*Export, error) {
	enc, err := parseEncoding(req.Encoding)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(req.ItemIDs))
	seen := make(map[string]bool, len(req.ItemIDs))
	for _, id := range req.ItemIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		it, err := s.items.GetItem(ctx, id)
		if errors.Is(err, circulation.ErrNotFound) {
			log.Println("[WARN] label export:", err)
			return nil, ErrNotFound(fmt.Sprintf("item %s not found", id))
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{
			Checked:   true,
			Title:     it.Title,
			Author:    it.Author,
			Barcode:   it.Barcode,
			ISBN:      it.ISBN,
			Condition: it.Condition.String(),
		})
	}

	n := countPrintable(rows)
	if n == 0 {
		return nil, ErrInvalid(ErrorMessageNoPrintJob)
	}

	var buf bytes.Buffer
	if err := writeCSV(&buf, rows, enc, req.Header); err != nil {
		log.Printf("[ERROR] label export: %v\n", err)
		return nil, ErrInternal(err.Error())
	}
	return &Export{Data: buf.Bytes(), Encoding: enc, Count: n}, nil
}
