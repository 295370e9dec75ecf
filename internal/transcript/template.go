package transcript

import (
	"context"
	"strings"
)

// TemplateGenerator は再生時間に応じた定型文を返す。外部サービスを設定しない場合に使用する。
type TemplateGenerator struct{}

// NewTemplateGenerator はTemplateGeneratorを生成する。
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

var templateShort = []string{
	"Welcome to this lesson. In this short video we cover the key ideas you need before moving on.",
	"Here are the main points:\n1. First concept\n2. Second concept\n3. Third concept",
	"That's it for this lesson. Practice what you have learned before the next one.",
}

var templateMedium = []string{
	"Hello and welcome. Today we look closely at one important topic.",
	"We start with the core concept, which everything else in this lesson builds on.",
	"Next we extend it with a second idea and walk through a practical example.",
	"To summarize:\n- Key point one\n- Key point two\n- Key point three",
	"Rewatch any part of this video if something is unclear.",
}

var templateLong = []string{
	"Welcome to this comprehensive lesson. There is a lot of ground to cover, so let's get started.",
	"First, an overview of what you will learn and the fundamentals it relies on.",
	"The first major concept comes with a step by step explanation and examples.",
	"The second concept builds on the first and shows how to apply it in a real project.",
	"The third concept is more advanced. We also look at common pitfalls to avoid.",
	"A worked example ties the pieces together.",
	"Summary:\n- Concept one and its applications\n- Concept two and when to use it\n- Concept three and good practices\n- Common mistakes",
	"Take your time with this material before moving on.",
}

var templateInDepth = []string{
	"Welcome to this in-depth lesson. Take notes and pause the video whenever you need to.",
	"We begin with a thorough overview and the building blocks for everything that follows.",
	"The first section explains the fundamentals with several examples.",
	"The second section introduces more complex ideas and practical applications.",
	"The third section covers advanced material and good practices.",
	"The fourth section looks at optimization strategies and troubleshooting tips.",
	"A final example combines everything from this lesson.",
	"Summary:\n- Fundamentals\n- Practical applications\n- Advanced techniques\n- Optimization and troubleshooting",
	"Review the material at your own pace and try it in your own projects. See you in the next lesson.",
}

const templateOutro = "That concludes our lesson. Thank you for watching, and see you in the next video."

// Generate は再生時間で区分した定型文を返す。
func (g *TemplateGenerator) Generate(_ context.Context, _ string, durationSeconds int) (string, error) {
	minutes := durationSeconds / 60
	seconds := durationSeconds % 60

	var paragraphs []string
	switch {
	case minutes < 2:
		paragraphs = templateShort
	case minutes < 5:
		paragraphs = templateMedium
	case minutes < 10:
		paragraphs = templateLong
	default:
		paragraphs = templateInDepth
	}

	text := strings.Join(paragraphs, "\n\n")
	if seconds > 30 {
		text += "\n\n" + templateOutro
	}
	return text, nil
}

// compile-time interface check
var _ Generator = (*TemplateGenerator)(nil)
