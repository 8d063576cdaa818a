package util

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	ma "github.com/multiformats/go-multiaddr"
)

func GenerateRandomBytes(n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		panic(err)
	}
	return b
}

func MakeToken(n int) string {
	bytes := GenerateRandomBytes(n)
	return base32.StdEncoding.EncodeToString(bytes)
}

func MustParseAddr(str string) ma.Multiaddr {
	addr, err := ma.NewMultiaddr(str)
	if err != nil {
		panic(err)
	}
	return addr
}

// TCPAddrFromMultiAddr returns a host:port string usable by net/http from
// an ip4 or dns4 tcp multiaddress.
func TCPAddrFromMultiAddr(maddr ma.Multiaddr) (string, error) {
	if maddr == nil {
		return "", fmt.Errorf("invalid address")
	}
	host, err := maddr.ValueForProtocol(ma.P_IP4)
	if err != nil {
		host, err = maddr.ValueForProtocol(ma.P_DNS4)
		if err != nil {
			return "", fmt.Errorf("address has no ip4 or dns4 component: %s", maddr)
		}
	}
	port, err := maddr.ValueForProtocol(ma.P_TCP)
	if err != nil {
		return "", fmt.Errorf("address has no tcp component: %s", maddr)
	}
	return fmt.Sprintf("%s:%s", host, port), nil
}

// SetLogLevels sets levels (debug, info, warn, error) for the named loggers.
func SetLogLevels(systems map[string]string) error {
	for sys, level := range systems {
		if err := logging.SetLogLevel(sys, level); err != nil {
			return fmt.Errorf("setting %s log level: %s", sys, err)
		}
	}
	return nil
}
