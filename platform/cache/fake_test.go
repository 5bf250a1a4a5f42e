package cache

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gomodule/redigo/redis"
)

// fakeRedis is a tiny in-memory redis.Conn covering the commands this
// package sends.
type fakeRedis struct {
	mu      sync.Mutex
	strings map[string]string
	hashes  map[string]map[string]string
	lists   map[string][]string
	ttl     map[string]int
	closes  int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		strings: map[string]string{},
		hashes:  map[string]map[string]string{},
		lists:   map[string][]string{},
		ttl:     map[string]int{},
	}
}

func (f *fakeRedis) Get() redis.Conn { return f }

func (f *fakeRedis) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakeRedis) Err() error { return nil }
func (f *fakeRedis) Send(string, ...interface{}) error { return nil }
func (f *fakeRedis) Flush() error { return nil }
func (f *fakeRedis) Receive() (interface{}, error) { return nil, nil }

func span(n, start, stop int) (int, int) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}

func toInt(v interface{}) int {
	var n int
	fmt.Sscan(fmt.Sprint(v), &n)
	return n
}

func (f *fakeRedis) Do(cmd string, args ...interface{}) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	str := make([]string, len(args))
	for i, a := range args {
		str[i] = fmt.Sprint(a)
	}
	switch strings.ToUpper(cmd) {
	case "GET":
		v, ok := f.strings[str[0]]
		if !ok {
			return nil, nil
		}
		return []byte(v), nil
	case "SET":
		f.strings[str[0]] = str[1]
		return "OK", nil
	case "DEL":
		var n int64
		for _, k := range str {
			for _, m := range []bool{delete2(f.strings, k), delete2(f.hashes, k), delete2(f.lists, k)} {
				if m {
					n++
				}
			}
		}
		return n, nil
	case "EXPIRE":
		f.ttl[str[0]] = toInt(args[1])
		return int64(1), nil
	case "HSET":
		h := f.hashes[str[0]]
		if h == nil {
			h = map[string]string{}
			f.hashes[str[0]] = h
		}
		for i := 1; i+1 < len(str); i += 2 {
			h[str[i]] = str[i+1]
		}
		return int64((len(str) - 1) / 2), nil
	case "HGETALL":
		var out []interface{}
		for k, v := range f.hashes[str[0]] {
			out = append(out, []byte(k), []byte(v))
		}
		return out, nil
	case "RPUSH":
		f.lists[str[0]] = append(f.lists[str[0]], str[1:]...)
		return int64(len(f.lists[str[0]])), nil
	case "LTRIM":
		l := f.lists[str[0]]
		start, stop := span(len(l), toInt(args[1]), toInt(args[2]))
		if start > stop {
			f.lists[str[0]] = nil
		} else {
			f.lists[str[0]] = append([]string(nil), l[start:stop+1]...)
		}
		return "OK", nil
	case "LRANGE":
		l := f.lists[str[0]]
		start, stop := span(len(l), toInt(args[1]), toInt(args[2]))
		out := []interface{}{}
		for i := start; i <= stop; i++ {
			out = append(out, []byte(l[i]))
		}
		return out, nil
	}
	return nil, fmt.Errorf("fake redis: unsupported command %s", cmd)
}

func delete2[V any](m map[string]V, k string) bool {
	_, ok := m[k]
	delete(m, k)
	return ok
}
