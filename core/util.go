package core

import (
	"crypto/rand"
	"encoding/json"
	"log"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// RandomDigits returns a random number of exactly n digits (no leading zero), as a string.
func RandomDigits(n int) string {
	if n <= 0 {
		return ""
	}
	low := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n-1)), nil)
	span := new(big.Int).Mul(low, big.NewInt(9))
	r, err := rand.Int(rand.Reader, span)
	if err != nil {
		log.Panicf("core.RandomDigits: %v", err)
	}
	return r.Add(r, low).String()
}

// ParseIDs parses a comma separated list of ids ("1, 2,3"), skipping blanks and non numeric parts.
func ParseIDs(s string) []int {
	parts := strings.Split(s, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		if id, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// JoinIDs is the inverse of ParseIDs.
func JoinIDs(ids []int) string {
	strs := make([]string, 0, len(ids))
	for _, id := range ids {
		strs = append(strs, strconv.Itoa(id))
	}
	return strings.Join(strs, ",")
}

// UniqueIDs returns ids without duplicates, keeping the first occurrence order.
func UniqueIDs(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	res := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		res = append(res, id)
	}
	return res
}

// Getwd tries to find the project root (the directory holding go.mod).
// go test changes the working directory to the package being tested, config lookups need the root.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if _, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd // deployed binaries run without sources
		}
		currDir = newDir
	}
}

// IDList is a list of ids exchanged as a comma separated string ("1,2,3"), null when empty.
type IDList []int

func (l IDList) Contains(id int) bool {
	for _, i := range l {
		if i == id {
			return true
		}
	}
	return false
}

func (l IDList) MarshalJSON() ([]byte, error) {
	if len(l) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(JoinIDs(l))
}

func (l *IDList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = ParseIDs(s)
		return nil
	}
	var ids []int
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*l = ids
	return nil
}
