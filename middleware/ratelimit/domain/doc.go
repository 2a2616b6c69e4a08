// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
// Um bucket é identificado por (endereço, classe), com classe read ou write,
// e cada classe tem a sua própria janela fixa.
package domain
