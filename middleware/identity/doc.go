// Package identity reconhece ou emite a identidade anônima de cada navegador.
//
// A identidade é um UUID aleatório guardado no cookie calli_user_id. O valor é
// aceito como está, sem assinatura nem tabela de sessões: quem tiver o valor do
// cookie age como aquele autor.
package identity
