// Package wire define o contrato do canal de invocação: os argumentos que o
// transporte envia para a função proxy e a resposta que ela devolve, além do
// codec JSON usado no gRPC. É compartilhado pelos invokers (infra) e pela
// implementação da função (proxyfn).
package wire
