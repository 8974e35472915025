// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - Cooldown: gate de cooldown com relógio injetável
//   - ChanPool: semáforo simples para limite de concorrência
//   - PayloadEncoder: gzip/deflate com github.com/klauspost/compress
//   - HTTPInvoker, JSONRPCInvoker, GRPCInvoker: canais de invocação
//   - HostThrottle: orçamento por host de destino (golang.org/x/time/rate) com contagem de liberados/negados
//   - MemoryStatsStore, RedisStatsStore, PrometheusStatsStore: estatísticas de envio
package infra
