package cache

import (
	"context"
	"time"
)

// Cache define la interfaz para una caché de clave-valor genérica.
// Los valores se guardan serializados en JSON.
type Cache interface {
	// Get intenta poblar 'dest' (que debe ser un puntero) con el valor asociado a la 'key'.
	// Devuelve (true, nil) si hay un 'hit' y (false, nil) si es un 'miss'.
	Get(ctx context.Context, key string, dest any) (bool, error)

	// Set guarda el valor con un TTL; ttl <= 0 usa el TTL por defecto de la caché.
	Set(ctx context.Context, key string, val any, ttl time.Duration) error

	// Add guarda el valor solo si la clave no existe. Devuelve false si ya existía.
	Add(ctx context.Context, key string, val any, ttl time.Duration) (bool, error)

	// Delete elimina la 'key' de la caché.
	Delete(ctx context.Context, key string) error
}
