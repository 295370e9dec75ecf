package transcript

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

// generateRequest は外部トランスクリプトAPIへのリクエストボディ。
type generateRequest struct {
	MediaURL        string `json:"media_url"`
	DurationSeconds int    `json:"duration_seconds"`
}

// generateResponse は外部トランスクリプトAPIのレスポンスボディ。
type generateResponse struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// HTTPGenerator は外部のテキスト生成APIを呼び出すGenerator。
// httpClientにはSSRF対策済みのクライアントを渡す。
type HTTPGenerator struct {
	client   *resty.Client
	endpoint string
	baseURL  string
}

// NewHTTPGenerator はHTTPGeneratorを生成する。
// baseURLは相対パスのメディアロケーターを絶対URLに変換するために使用する。
func NewHTTPGenerator(endpoint, apiKey, baseURL string, httpClient *http.Client) *HTTPGenerator {
	client := resty.NewWithClient(httpClient).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "microcourse/1.0")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &HTTPGenerator{
		client:   client,
		endpoint: endpoint,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Generate は外部APIにメディアURLと再生時間を送り、生成テキストを返す。
func (g *HTTPGenerator) Generate(ctx context.Context, mediaLocator string, durationSeconds int) (string, error) {
	mediaURL := mediaLocator
	if strings.HasPrefix(mediaLocator, "/") {
		mediaURL = g.baseURL + mediaLocator
	}

	var result generateResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(generateRequest{MediaURL: mediaURL, DurationSeconds: durationSeconds}).
		SetResult(&result).
		Post(g.endpoint)
	if err != nil {
		return "", fmt.Errorf("トランスクリプトAPIの呼び出しに失敗しました: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("トランスクリプトAPIがステータス %d を返しました", resp.StatusCode())
	}
	return strings.TrimSpace(result.Transcript), nil
}

// compile-time interface check
var _ Generator = (*HTTPGenerator)(nil)
