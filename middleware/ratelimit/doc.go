// Package ratelimit fornece os adapters HTTP (net/http) do rate limit e do limite
// de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny, acquire/timeout) sem net/http
//   - infra: implementações concretas (janela fixa, token bucket, Redis, semáforo)
//   - ratelimit (este pacote): extração do endereço do cliente + middleware de concorrência
//
// A decisão por (endereço, classe) não é um middleware: o serviço de postagens
// chama application.Service.Decide uma vez por operação, antes do banco.
//
// Fluxo no servidor:
//
//   1) Extrai o endereço do cliente (header/XFF/RemoteAddr) com AddressFunc
//   2) O serviço pede a decisão para a classe read ou write
//   3) Se bloqueado, o handler responde 429
//
// Variáveis de ambiente do binário (cmd/server) controlam o comportamento,
// como RATE_WRITE_LIMIT, RATE_WRITE_WINDOW, CONCURRENCY_MAX e CONCURRENCY_TIMEOUT.
package ratelimit
