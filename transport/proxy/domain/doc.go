// Package domain define contratos e tipos de domínio do transporte via proxy:
// requisição/resposta do canal de invocação, Outcome, erros, gate de cooldown
// e pool de vagas.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura (HTTP direto, JSON-RPC, gRPC).
package domain
