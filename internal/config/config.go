package config

import (
	"time"

	"github.com/shouni/go-utils/envutil"
)

// デフォルト値の定義なのだ
const (
	DefaultModel      = "gemini-3-flash-preview"
	DefaultImageModel = "gemini-3-pro-image-preview"
	DefaultDataDir    = "banana_data" // プロジェクト状態・レンダー・セッションの保存先
	DefaultAssetsDir  = "assets"      // ナレッジベース画像と entities.json の置き場所
	DefaultOutputDir  = "output"      // パブリッシャーのデフォルト保存先なのだ
	DefaultSessionID  = "default"     // チャット履歴とスタジオ作業を束ねる作業場ID
	DefaultRateLimit  = 30 * time.Second
	// DefaultEntityByteBudget は1枚の参照画像をインライン添付できる上限です。
	// 超過した画像はオフライン・エンティティとして名前だけ参照されます。
	DefaultEntityByteBudget = 4 << 20
)

// Config はアプリケーション全体の環境設定（APIキーやモデル名）を保持する構造体なのだ。
type Config struct {
	GeminiAPIKey     string
	GeminiModel      string
	GeminiImageModel string
	DataDir          string
	AssetsDir        string
	OutputDir        string

	Options RunOptions
}

// LoadConfig は環境変数から設定を読み込み、構造体を返すのだ！
func LoadConfig() *Config {
	return &Config{
		GeminiAPIKey:     envutil.GetEnv("GEMINI_API_KEY", ""),
		GeminiModel:      envutil.GetEnv("GEMINI_MODEL", DefaultModel),
		GeminiImageModel: envutil.GetEnv("IMAGE_GEMINI_MODEL", DefaultImageModel),
		DataDir:          envutil.GetEnv("BANANA_DATA_DIR", DefaultDataDir),
		AssetsDir:        envutil.GetEnv("BANANA_ASSETS_DIR", DefaultAssetsDir),
		OutputDir:        envutil.GetEnv("BANANA_OUTPUT_DIR", DefaultOutputDir),
	}
}

// RunOptions は CLI フラグから渡される実行時のパラメータなのだ。
type RunOptions struct {
	SessionID  string // --session: チャット履歴とスタジオ状態を共有する作業場ID
	SessionDir string // --session-dir: 状態保存先（空なら環境変数/既定値）
	AssetsDir  string // --assets-dir: ナレッジベース画像の置き場所（空なら環境変数/既定値）
	Model      string // --model: テキスト生成用のGeminiモデル
	ImageModel string // --image-model: 画像生成用のGeminiモデル
	OutputDir  string // --out: パブリッシャーの出力先
}

// TextModel はフラグと環境変数を突き合わせたテキスト生成モデル名を返します。
func (c *Config) TextModel() string {
	if c.Options.Model != "" {
		return c.Options.Model
	}
	return c.GeminiModel
}

// ImageModel はフラグと環境変数を突き合わせた画像生成モデル名を返します。
func (c *Config) ImageModel() string {
	if c.Options.ImageModel != "" {
		return c.Options.ImageModel
	}
	return c.GeminiImageModel
}

// PublishDir はフラグと環境変数を突き合わせた公開先ディレクトリを返します。
func (c *Config) PublishDir() string {
	if c.Options.OutputDir != "" {
		return c.Options.OutputDir
	}
	return c.OutputDir
}

// StateDir はフラグと環境変数を突き合わせた状態保存ディレクトリを返します。
func (c *Config) StateDir() string {
	if c.Options.SessionDir != "" {
		return c.Options.SessionDir
	}
	return c.DataDir
}

// KnowledgeDir はフラグと環境変数を突き合わせたナレッジベース画像の
// ディレクトリを返します。
func (c *Config) KnowledgeDir() string {
	if c.Options.AssetsDir != "" {
		return c.Options.AssetsDir
	}
	return c.AssetsDir
}
