package gateway

import (
	"fmt"

	"google.golang.org/genai"

	"github.com/shouni/go-banana-kit/pkg/domain"
)

// toContents はドメインのターン列をプロバイダの Content 列へ変換します。
// セグメントの順序はそのまま保たれます。
func toContents(history []domain.Turn) ([]*genai.Content, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: 送信するターンがありません", ErrRequestFailed)
	}

	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		parts := make([]*genai.Part, 0, len(turn.Segments))
		for _, seg := range turn.Segments {
			switch seg.Kind {
			case domain.SegmentText:
				parts = append(parts, genai.NewPartFromText(seg.Text))
			case domain.SegmentImage:
				parts = append(parts, genai.NewPartFromBytes(seg.Data, seg.MIMEType))
			default:
				return nil, fmt.Errorf("%w: 未知のセグメント種別 %q", ErrRequestFailed, seg.Kind)
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.Role(turn.Role)))
	}

	if len(contents) == 0 {
		return nil, fmt.Errorf("%w: 送信するセグメントがありません", ErrRequestFailed)
	}
	return contents, nil
}

// normalizeResponse は応答の先頭候補をドメインのターンへ正規化します。
// テキストと画像以外のパーツ(思考トレースなど)は捨て、パーツの出現順を
// そのままセグメント順として保持します。使用可能なパーツが1つも無ければ
// ErrEmptyResponse を返します。
func normalizeResponse(resp *genai.GenerateContentResponse) (domain.Turn, []domain.GroundingRef, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return domain.Turn{}, nil, fmt.Errorf("%w: プロンプトがブロックされました (%s)", ErrEmptyResponse, resp.PromptFeedback.BlockReason)
		}
		return domain.Turn{}, nil, fmt.Errorf("%w: 候補がありません", ErrEmptyResponse)
	}

	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return domain.Turn{}, nil, fmt.Errorf("%w: 候補にパーツがありません", ErrEmptyResponse)
	}

	var segs []domain.Segment
	for _, part := range cand.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		switch {
		case part.Text != "":
			segs = append(segs, domain.NewTextSegment(part.Text))
		case part.InlineData != nil && len(part.InlineData.Data) > 0:
			segs = append(segs, domain.NewImageSegment(part.InlineData.MIMEType, part.InlineData.Data))
		}
	}
	if len(segs) == 0 {
		return domain.Turn{}, nil, fmt.Errorf("%w: テキストも画像も含まれていません", ErrEmptyResponse)
	}

	return domain.NewTurn(domain.RoleModel, segs...), collectGrounding(cand), nil
}

// collectGrounding は検索グラウンディングの出典を抽出します。
func collectGrounding(cand *genai.Candidate) []domain.GroundingRef {
	if cand.GroundingMetadata == nil {
		return nil
	}
	var refs []domain.GroundingRef
	for _, chunk := range cand.GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		refs = append(refs, domain.GroundingRef{
			Title: chunk.Web.Title,
			URI:   chunk.Web.URI,
		})
	}
	return refs
}
