// Package transcript はレッスン動画の説明テキスト（トランスクリプト）を生成する。
// 生成はベストエフォートであり、失敗してもレッスン操作は継続する。
package transcript

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hitoshi/microcourse/internal/metrics"
)

// Placeholder は生成に失敗した場合に保存するテキスト。
const Placeholder = "Transcript generation failed. Please add manually."

// ErrEmptyTranscript は生成結果が空であることを表す。
var ErrEmptyTranscript = errors.New("empty transcript")

// Generator はメディアと再生時間（秒）からテキストを生成する。
type Generator interface {
	Generate(ctx context.Context, mediaLocator string, durationSeconds int) (string, error)
}

// Describer はGeneratorの失敗をプレースホルダーに置き換える。
type Describer struct {
	gen     Generator
	metrics metrics.MetricsCollector
}

// NewDescriber はDescriberを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewDescriber(gen Generator, collector metrics.MetricsCollector) *Describer {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Describer{gen: gen, metrics: collector}
}

// Describe はテキストを生成する。エラーは返さず、失敗時はPlaceholderを返す。
func (d *Describer) Describe(ctx context.Context, mediaLocator string, durationSeconds int) string {
	text, err := d.gen.Generate(ctx, mediaLocator, durationSeconds)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyTranscript
	}
	if err != nil {
		reason := "error"
		switch {
		case errors.Is(err, ErrEmptyTranscript):
			reason = "empty"
		case errors.Is(err, context.DeadlineExceeded):
			reason = "timeout"
		}
		slog.Warn("トランスクリプト生成に失敗（プレースホルダーで代替）",
			"media", mediaLocator, "reason", reason, "error", err)
		d.metrics.RecordTranscriptFailure(reason)
		return Placeholder
	}
	return text
}
