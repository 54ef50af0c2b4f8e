package klogging

import (
	"context"
	"fmt"
	"strings"
)

// key is an unexported type for keys defined in this package.
type key int

var userKey key

// CtxInfo carries k-v pairs along a ctx chain, every log entry created from that ctx
// includes them (parents first). Typical content: grainId, sessionId, node.
type CtxInfo struct {
	Parent  *CtxInfo
	Details []Keypair // small, ordered; duplicates resolved by the last With
}

// GetCurrentCtxInfo returns nil if ctx does not carry a CtxInfo
func GetCurrentCtxInfo(ctx context.Context) *CtxInfo {
	if ctx == nil {
		return nil
	}
	u, _ := ctx.Value(userKey).(*CtxInfo)
	return u
}

// CreateCtxInfo creates a new child info, using current ctx as parent.
func CreateCtxInfo(ctx context.Context) (context.Context, *CtxInfo) {
	info := &CtxInfo{
		Parent: GetCurrentCtxInfo(ctx),
	}
	return context.WithValue(ctx, userKey, info), info
}

// EmbedKv is the one-liner form of CreateCtxInfo + With.
func EmbedKv(ctx context.Context, k string, v string) context.Context {
	ctx2, info := CreateCtxInfo(ctx)
	info.With(k, v)
	return ctx2
}

func (info *CtxInfo) With(k string, v string) *CtxInfo {
	for i := range info.Details {
		if info.Details[i].K == k {
			info.Details[i].V = v
			return info
		}
	}
	info.Details = append(info.Details, Keypair{K: k, V: v})
	return info
}

// VisitForward: visit top-level parents first, then its child, until leaf child.
// visitor returns false to terminate early.
func (info *CtxInfo) VisitForward(visitor func(k string, v string) bool) bool {
	if info == nil {
		return true
	}
	if !info.Parent.VisitForward(visitor) {
		return false
	}
	for _, item := range info.Details {
		str, _ := item.V.(string)
		if str == "" {
			continue
		}
		if !visitor(item.K, str) {
			return false
		}
	}
	return true
}

// FindByKey returns fallback if k is not found in this info or any parent.
func (info *CtxInfo) FindByKey(k string, fallback string) string {
	if info == nil {
		return fallback
	}
	for i := len(info.Details) - 1; i >= 0; i-- {
		if info.Details[i].K == k {
			if str, _ := info.Details[i].V.(string); str != "" {
				return str
			}
			return fallback
		}
	}
	return info.Parent.FindByKey(k, fallback)
}

func (info *CtxInfo) String() string {
	var b strings.Builder
	info.VisitForward(func(k string, v string) bool {
		fmt.Fprintf(&b, ", %s=%v", k, v)
		return true
	})
	return b.String()
}
