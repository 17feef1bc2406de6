package utils

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ComputeMD5 returns the hex MD5 of data.
func ComputeMD5(data []byte) string {
	hash := md5.Sum(data)
	return hex.EncodeToString(hash[:])
}

func ComputeSHA256(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

const (
	HEX          = "hex"
	BASE32       = "base32"
	ALPHANUMERIC = "alphanumeric"
)

// UID returns a random identifier of the given style and length.
func UID(style string, length int) string {
	uid := uuid.New()

	switch style {
	case HEX:
		noDash := strings.ReplaceAll(uid.String(), "-", "")
		if len(noDash) >= length {
			return noDash[:length]
		}
		return noDash

	case BASE32:
		encoded := base32.StdEncoding.EncodeToString(uid[:])
		clean := strings.ToLower(strings.TrimRight(encoded, "="))
		if len(clean) >= length {
			return clean[:length]
		}
		return clean

	case ALPHANUMERIC:
		noDash := strings.ReplaceAll(uid.String(), "-", "")
		var result strings.Builder
		for _, char := range noDash {
			if (char >= 'a' && char <= 'z') || (char >= '0' && char <= '9') {
				result.WriteRune(char)
				if result.Len() >= length {
					break
				}
			}
		}
		return result.String()

	default:
		return uid.String()[:length]
	}
}

func ParseSize(s, unit string) (int, error) {
	sz := strings.TrimRight(s, "gGmMkK")
	if len(sz) == 0 {
		return -1, fmt.Errorf("%q:can't parse as num[gGmMkK]:%w", s, strconv.ErrSyntax)
	}
	amt, err := strconv.ParseUint(sz, 0, 0)
	if err != nil {
		return -1, err
	}
	if len(s) > len(sz) {
		unit = s[len(sz):]
	}
	switch unit {
	case "G", "g":
		return int(amt) << 30, nil
	case "M", "m":
		return int(amt) << 20, nil
	case "K", "k":
		return int(amt) << 10, nil
	case "":
		return int(amt), nil
	}
	return -1, fmt.Errorf("can not parse %q as num[gGmMkK]:%w", s, strconv.ErrSyntax)
}

func MustParseSize(s string) int {
	ls := len(s)
	res, err := ParseSize(s[0:ls-1], s[ls-1:])
	if err != nil {
		panic(err)
	}
	return res
}
