// Package gateway は Gemini API への送受信を一手に引き受ける薄い転送層です。
//
// 上位層はドメインの Turn/Segment だけを扱い、プロバイダ固有の型への変換と
// 応答の正規化はこのパッケージ内で一度だけ行います。会話・構造化抽出・
// 画像生成の3モードを提供し、失敗は ErrInvalidCredential / ErrRequestFailed /
// ErrEmptyResponse のいずれかへ分類されます。
package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/shouni/go-banana-kit/pkg/domain"
)

// Config はクライアント初期化に必要な設定です。
type Config struct {
	// APIKey は Gemini API の資格情報。必須。
	APIKey string
	// TextModel は会話・構造化抽出に使うモデル名。必須。
	TextModel string
	// ImageModel は画像生成に使うモデル名。必須。
	ImageModel string
	// Temperature は会話モードの温度。nil ならモデル既定値。
	Temperature *float32
}

// Client は genai クライアントを包む転送層の実体です。
type Client struct {
	genaiClient *genai.Client
	textModel   string
	imageModel  string
	temperature *float32
}

// Reply は正規化済みのモデル応答です。
type Reply struct {
	// Turn はモデル役のターン。セグメントは応答パーツの出現順を保持する。
	Turn domain.Turn
	// Grounding は検索グラウンディングの出典。会話モード以外では通常空。
	Grounding []domain.GroundingRef
}

// RenderOptions は画像生成モードの出力指定です。
type RenderOptions struct {
	// AspectRatio は "3:4" や "16:9" などの縦横比。空ならモデル既定値。
	AspectRatio string
	// ImageSize は "1K" / "2K" / "4K" のいずれか。空ならモデル既定値。
	ImageSize string
}

// New は設定を検証し、Gemini API クライアントを初期化します。
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: APIキーが設定されていません", ErrInvalidCredential)
	}
	if cfg.TextModel == "" {
		return nil, fmt.Errorf("テキストモデル名は必須です")
	}
	if cfg.ImageModel == "" {
		return nil, fmt.Errorf("画像モデル名は必須です")
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}

	return &Client{
		genaiClient: genaiClient,
		textModel:   cfg.TextModel,
		imageModel:  cfg.ImageModel,
		temperature: cfg.Temperature,
	}, nil
}

// Chat は会話モードで履歴全体を送信します。Google 検索によるグラウンディングを
// 有効にし、出典があれば Reply.Grounding に載せて返します。
func (c *Client) Chat(ctx context.Context, system string, history []domain.Turn) (*Reply, error) {
	cfg := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
		},
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if c.temperature != nil {
		cfg.Temperature = c.temperature
	}

	return c.generate(ctx, c.textModel, history, cfg)
}

// ExtractJSON は構造化抽出モードで履歴を送信し、スキーマに従う JSON の
// 生バイト列を返します。コードフェンスで包まれた応答も復元します。
func (c *Client) ExtractJSON(ctx context.Context, system string, history []domain.Turn, schema *genai.Schema) ([]byte, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	reply, err := c.generate(ctx, c.textModel, history, cfg)
	if err != nil {
		return nil, err
	}

	raw := reply.Turn.Text()
	recovered := RecoverJSON(raw)
	if recovered == "" {
		return nil, fmt.Errorf("%w: JSON本文が見つかりません (応答抜粋: %q)", ErrEmptyResponse, truncate(raw, 200))
	}
	return []byte(recovered), nil
}

// Render は画像生成モードで履歴を送信します。応答に画像セグメントが
// 1つも含まれない場合は ErrEmptyResponse を返します。
func (c *Client) Render(ctx context.Context, history []domain.Turn, opts RenderOptions) (*Reply, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	if opts.AspectRatio != "" || opts.ImageSize != "" {
		cfg.ImageConfig = &genai.ImageConfig{
			AspectRatio: opts.AspectRatio,
			ImageSize:   opts.ImageSize,
		}
	}

	reply, err := c.generate(ctx, c.imageModel, history, cfg)
	if err != nil {
		return nil, err
	}
	if len(reply.Turn.Images()) == 0 {
		return nil, fmt.Errorf("%w: 画像セグメントが含まれていません", ErrEmptyResponse)
	}
	return reply, nil
}

// generate は3モード共通の送信と正規化を行います。
func (c *Client) generate(ctx context.Context, model string, history []domain.Turn, cfg *genai.GenerateContentConfig) (*Reply, error) {
	contents, err := toContents(history)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Gemini API を呼び出します", "model", model, "turns", len(contents))

	resp, err := c.genaiClient.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, classifyAPIError(err)
	}

	turn, grounding, err := normalizeResponse(resp)
	if err != nil {
		return nil, err
	}
	return &Reply{Turn: turn, Grounding: grounding}, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
