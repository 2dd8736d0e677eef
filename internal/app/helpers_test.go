package app

import (
	"net"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func domainFilterAll() domain.ProductFilter {
	return domain.ProductFilter{}
}

// freeAddr возвращает свободный локальный адрес для тестового listener.
func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()
	return addr
}
