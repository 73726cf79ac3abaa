package client

import (
	"context"

	"github.com/rs/zerolog/log"
)

// DefaultSampleQuestions are offered when the backend cannot list its own.
var DefaultSampleQuestions = []string{
	"Compare the average annual rainfall in Maharashtra and Gujarat for the last 5 years. In parallel, list the top 5 most produced cereals by volume in each state during the same period.",
	"Identify the district in Punjab with the highest wheat production in 2023 and compare that with the district with the lowest wheat production in Haryana.",
	"Analyze the rice production trend in West Bengal over the last decade. Correlate this trend with the corresponding rainfall data for the same period.",
	"A policy advisor is proposing a scheme to promote millets over rice in Karnataka. Based on historical data from the last 10 years, what are the three most compelling data-backed arguments to support this policy?",
}

// SampleQuestionSource lists sample questions.
type SampleQuestionSource interface {
	SampleQuestions(ctx context.Context) ([]string, error)
}

// SampleQuestionsOrDefault asks src for sample questions and falls back to
// DefaultSampleQuestions when that fails or returns none. The bool reports
// whether the fallback was used.
func SampleQuestionsOrDefault(ctx context.Context, src SampleQuestionSource) ([]string, bool) {
	if src != nil {
		questions, err := src.SampleQuestions(ctx)
		if err == nil && len(questions) > 0 {
			return questions, false
		}
		if err != nil {
			log.Debug().Err(err).Msg("could not fetch sample questions, using defaults")
		}
	}
	ret := make([]string, len(DefaultSampleQuestions))
	copy(ret, DefaultSampleQuestions)
	return ret, true
}
