package cache

import (
	"github.com/gomodule/redigo/redis"
)

func Get(key string, conn redis.Conn) (string, error) {
	return redis.String(conn.Do("GET", key))
}

func Set(key string, value interface{}, conn redis.Conn) error {
	_, err := conn.Do("SET", key, value)
	return err
}

func Del(conn redis.Conn, keys ...string) error {
	_, err := conn.Do("DEL", redis.Args{}.AddFlat(keys)...)
	return err
}

func Expire(key string, seconds int, conn redis.Conn) error {
	_, err := conn.Do("EXPIRE", key, seconds)
	return err
}

// HSETALL writes every field of values into the hash at key.
func HSETALL(key string, values map[string]string, conn redis.Conn) error {
	if len(values) == 0 {
		return nil
	}
	_, err := conn.Do("HSET", redis.Args{}.Add(key).AddFlat(values)...)
	return err
}

func HGETALL(key string, conn redis.Conn) (map[string]string, error) {
	return redis.StringMap(conn.Do("HGETALL", key))
}

func RPUSH(key string, values []string, conn redis.Conn) (int, error) {
	return redis.Int(conn.Do("RPUSH", redis.Args{}.Add(key).AddFlat(values)...))
}

func LTRIM(key string, start, stop int, conn redis.Conn) error {
	_, err := conn.Do("LTRIM", key, start, stop)
	return err
}

// LRANGE returns the elements between start and stop inclusive. Negative
// indexes count from the tail.
func LRANGE(key string, start, stop int, conn redis.Conn) ([]string, error) {
	return redis.Strings(conn.Do("LRANGE", key, start, stop))
}
