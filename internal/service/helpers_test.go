package service

import (
	"io"

	"github.com/rs/zerolog"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func int64Ptr(v int64) *int64 { return &v }
