package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// 呼び出し側が errors.Is で分類できる哨兵エラー。
// 資格情報の不備だけは再試行しても無駄なので、他の失敗と区別します。
var (
	// ErrInvalidCredential は API キーが欠落・無効な場合のエラーです。
	ErrInvalidCredential = errors.New("APIキーが無効です")
	// ErrRequestFailed は資格情報以外の理由で生成リクエストが失敗した場合のエラーです。
	ErrRequestFailed = errors.New("生成リクエストに失敗しました")
	// ErrEmptyResponse は応答に使用可能なコンテンツが含まれない場合のエラーです。
	// 解析できない応答も、無い応答と同じ扱いにします。
	ErrEmptyResponse = errors.New("モデル応答に使用可能なコンテンツが含まれていません")
)

// classifyAPIError は genai のエラーを哨兵エラーへ写像します。
// 認証系(401/403)、キーが解決できない場合に返る 404、「API key」を含む 400 は
// 資格情報の問題、それ以外は一般的なリクエスト失敗として扱います。
func classifyAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden || apiErr.Code == http.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrInvalidCredential, err)
		case apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "API key"):
			return fmt.Errorf("%w: %w", ErrInvalidCredential, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrRequestFailed, err)
}
