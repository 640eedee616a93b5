package aiinterface

import "github.com/pkoukk/tiktoken-go"

// avgCharsPerToken 粗略估算时的平均字符/Token 比例
const avgCharsPerToken = 4

// CountTokens 计算文本 Token 数。
// 优先使用模型对应的编码器，模型未识别时回退 cl100k_base，
// 编码器不可用时按字符数粗略估算，不返回错误。
func CountTokens(text, model string) int {
	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tkm, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil || tkm == nil {
		return estimateTokens(text)
	}
	return len(tkm.Encode(text, nil, nil))
}

// EstimateUsage 在提供商未报告用量时构造估算的 Usage。
func EstimateUsage(req *GenerateRequest, content, model string) *Usage {
	prompt := 0
	for _, msg := range req.Messages {
		prompt += CountTokens(msg.Content, model) + 4 // 4 为 role 等开销的近似值
	}
	completion := CountTokens(content, model)
	return &Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		Estimated:        true,
	}
}

func estimateTokens(text string) int {
	n := len(text) / avgCharsPerToken
	if n == 0 && text != "" {
		n = 1
	}
	return n
}
