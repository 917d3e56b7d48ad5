package app

import (
	"github.com/riskibarqy/rank-tracker/external/apex"
	"github.com/riskibarqy/rank-tracker/external/gameapi"
	"github.com/riskibarqy/rank-tracker/external/leagueoflegends"
	"github.com/riskibarqy/rank-tracker/external/rocketleague"
	"github.com/riskibarqy/rank-tracker/external/valorant"
	"github.com/riskibarqy/rank-tracker/internal/config"
	"github.com/riskibarqy/rank-tracker/internal/platform/logging"
	"github.com/riskibarqy/rank-tracker/internal/platform/resilience"
	"github.com/riskibarqy/rank-tracker/internal/usecase"
)

func circuitBreakerConfig(cfg config.Config, logger *logging.Logger, name string) resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		Enabled:          cfg.ProviderCircuitEnabled,
		FailureThreshold: cfg.ProviderCircuitFailureCount,
		OpenTimeout:      cfg.ProviderCircuitOpenTimeout,
		HalfOpenMaxReq:   cfg.ProviderCircuitHalfOpenMaxReq,
		OnStateChange: func(from, to resilience.CircuitState) {
			logger.Warn("circuit breaker state changed", "provider", name, "from", from, "to", to)
		},
	}
}

// buildAdapters returns one adapter per game whose provider key is set.
func buildAdapters(cfg config.Config, observer gameapi.CallObserver, logger *logging.Logger) []usecase.GameAdapter {
	adapters := make([]usecase.GameAdapter, 0, 4)

	if cfg.Riot.Enabled() {
		adapters = append(adapters, leagueoflegends.New(leagueoflegends.Config{
			BaseURL:        cfg.Riot.BaseURL,
			APIKey:         cfg.Riot.APIKey,
			Platform:       cfg.RiotPlatform,
			Queue:          cfg.RiotQueue,
			Timeout:        cfg.Riot.Timeout,
			RatePerMinute:  cfg.Riot.RatePerMinute,
			Burst:          cfg.Riot.Burst,
			Logger:         logger.Named("riot"),
			CircuitBreaker: circuitBreakerConfig(cfg, logger, "riot"),
			Observer:       observer,
		}))
	}
	if cfg.Henrik.Enabled() {
		adapters = append(adapters, valorant.New(valorant.Config{
			BaseURL:        cfg.Henrik.BaseURL,
			APIKey:         cfg.Henrik.APIKey,
			Timeout:        cfg.Henrik.Timeout,
			RatePerMinute:  cfg.Henrik.RatePerMinute,
			Burst:          cfg.Henrik.Burst,
			Logger:         logger.Named("henrikdev"),
			CircuitBreaker: circuitBreakerConfig(cfg, logger, "henrikdev"),
			Observer:       observer,
		}))
	}
	if cfg.Apex.Enabled() {
		adapters = append(adapters, apex.New(apex.Config{
			BaseURL:        cfg.Apex.BaseURL,
			APIKey:         cfg.Apex.APIKey,
			Timeout:        cfg.Apex.Timeout,
			RatePerMinute:  cfg.Apex.RatePerMinute,
			Burst:          cfg.Apex.Burst,
			Logger:         logger.Named("apex"),
			CircuitBreaker: circuitBreakerConfig(cfg, logger, "apex"),
			Observer:       observer,
		}))
	}
	if cfg.RapidAPI.Enabled() {
		adapters = append(adapters, rocketleague.New(rocketleague.Config{
			BaseURL:        cfg.RapidAPI.BaseURL,
			APIKey:         cfg.RapidAPI.APIKey,
			Host:           cfg.RapidAPIHost,
			Playlist:       cfg.RapidAPIPlaylist,
			Timeout:        cfg.RapidAPI.Timeout,
			RatePerMinute:  cfg.RapidAPI.RatePerMinute,
			Burst:          cfg.RapidAPI.Burst,
			Logger:         logger.Named("rapidapi"),
			CircuitBreaker: circuitBreakerConfig(cfg, logger, "rapidapi"),
			Observer:       observer,
		}))
	}

	return adapters
}
