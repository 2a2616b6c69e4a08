// Package domain define a postagem, o contrato do gateway de armazenamento e a
// taxonomia de erros (não encontrado, validação, rate limit, armazenamento, interno).
//
// No máximo uma postagem existe por identidade.
package domain
