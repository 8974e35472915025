// Package proxy é o transporte de telemetria que envia eventos através de um
// canal de invocação (função proxy serverless ou HTTP direto).
//
// Visão geral (camadas):
//
//   - domain: contratos, tipos e erros (sem net/http e sem dependências externas)
//   - application: casos de uso (classificação da resposta, retry-after, motor de envio)
//   - infra: implementações concretas (gate de cooldown, semáforo, encoder,
//     invokers HTTP/JSON-RPC/gRPC, stats em memória/Redis/Prometheus, token bucket)
//   - wire: contrato do canal de invocação compartilhado com a função proxy
//   - proxyfn: implementação de referência da função proxy
//   - proxy (este pacote): wiring (Transport), políticas de URL e o handler HTTP do relay
//
// Fluxo de um envio:
//
//  1. Gate de cooldown: se travado, falha na hora com LockedError
//  2. Throttle local opcional: se negado, falha com ThrottledError
//  3. Vaga no limitador: sem vaga, falha com BufferFullError
//  4. Codifica o corpo (gzip acima de 32 KiB), invoca o canal e classifica
//  5. 429 trava o gate pelo retry-after; a vaga é liberada em qualquer saída
//
// As verificações 1 a 3 rodam de forma síncrona em Send; só a invocação roda
// em goroutine própria. Não há retry interno: o chamador decide.
package proxy
