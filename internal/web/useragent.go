package web

import (
	"math/rand"
	"sync/atomic"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:129.0) Gecko/20100101 Firefox/129.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36 Edg/129.0.0.0",
	"Mozilla/5.0 (Linux; Android 14; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Mobile Safari/537.36",
}

var uaCounter atomic.Uint64

// NextUserAgent rotates through userAgents, jumping to a random one now and
// then so consecutive fetches of one host do not look scripted.
func NextUserAgent() string {
	if rand.Intn(5) == 0 {
		return userAgents[rand.Intn(len(userAgents))]
	}
	return userAgents[int(uaCounter.Add(1)%uint64(len(userAgents)))]
}
