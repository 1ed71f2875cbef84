package coursegen

import (
	"github.com/yungbote/examcourse-backend/internal/inference/config"
	"github.com/yungbote/examcourse-backend/internal/modules/coursegen/leakage"
	"github.com/yungbote/examcourse-backend/internal/modules/coursegen/lessons"
	"github.com/yungbote/examcourse-backend/internal/modules/coursegen/topics"
)

func DetectorConfig(g config.GenerationConfig) topics.Config {
	return topics.Config{
		Provider:          g.DetectionProvider,
		Timeout:           g.DetectionTimeout.Duration,
		Retries:           g.Retries,
		MaxTokens:         g.DetectionMaxTokens,
		Temperature:       g.DetectionTemperature,
		BatchThreshold:    g.BatchThreshold,
		BatchSize:         g.BatchSize,
		BatchDelay:        g.BatchDelay.Duration,
		MinTopics:         g.MinTopics,
		MaxTopics:         g.MaxTopics,
		MaxConcepts:       g.MaxConcepts,
		RecoveryTopicName: g.RecoveryTopicName,
	}
}

func LessonConfig(g config.GenerationConfig) lessons.Config {
	return lessons.Config{
		Provider:    g.LessonProvider,
		Timeout:     g.LessonTimeout.Duration,
		Retries:     g.Retries,
		MaxTokens:   g.LessonMaxTokens,
		Temperature: g.LessonTemperature,
		Window:      g.LessonWindow,
		WindowDelay: g.WindowDelay.Duration,
		MinWords:    g.LessonMinWords,
		MaxWords:    g.LessonMaxWords,
	}
}

func LeakageDetector(g config.GenerationConfig) leakage.Detector {
	return leakage.New(g.LeakageThreshold, g.LeakageShingleSize)
}
