// Package application contém o serviço de postagens: rate limit por (endereço,
// classe), validação de tamanho e chamadas ao Store.
//
// Não conhece net/http; quem chama resolve identidade e endereço antes.
package application
