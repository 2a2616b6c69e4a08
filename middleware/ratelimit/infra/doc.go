// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - WindowStore: janela fixa por chave, em memória, com shards (padrão)
//   - TokenStore: token bucket por chave usando golang.org/x/time/rate
//   - RedisWindowStore: janela fixa compartilhada via script Lua no Redis
//   - MemoryStatsStore / RedisStatsStore / PrometheusStats: estatísticas das decisões
//   - ChanPool: semáforo simples para limite de concorrência
package infra
