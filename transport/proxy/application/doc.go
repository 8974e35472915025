// Package application contém os casos de uso do transporte: classificação da
// resposta do proxy, parsing de retry-after, decisão de throttle, aquisição de
// vagas e o motor de dispatch que orquestra tudo.
//
// Ele depende do pacote domain (e de zap para log) e não conhece net/http.
// Ex.: DispatchService.Dispatch(ctx, req) retorna um Outcome (success /
// rate limited / erro genérico) e atualiza o gate de cooldown.
package application
