package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bet_commands_total",
		Help: "Comandos de aposta processados, por ação e resultado.",
	}, []string{"action", "result"})

	settledPool = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bet_settled_pool_total",
		Help: "Soma dos pools liquidados.",
	})
)
