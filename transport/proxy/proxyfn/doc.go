// Package proxyfn implementa a função proxy do lado de lá do canal de
// invocação: recebe wire.InvokeArgs, executa o POST real no endpoint de
// ingestão e devolve status + headers.
//
// É servida como JSON-RPC 2.0 (github.com/gorilla/rpc/v2) e como gRPC com
// codec JSON. Serve de referência e de alvo para testes dos invokers.
package proxyfn
