// Package posting é o adapter HTTP da API de 書き初め (kakizome).
//
// Camadas, no mesmo formato do rate limit:
//
//   - domain: Posting, contrato do Store, erros
//   - application: serviço (validação, rate limit, orquestração)
//   - infra: Stores em memória, PostgreSQL e SQLite
//   - posting (este pacote): rotas chi, JSON e tradução de erros para status
//
// Erros viram {"error": "..."}; falhas de armazenamento nunca vazam detalhe.
package posting
