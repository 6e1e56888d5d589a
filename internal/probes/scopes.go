// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package probes

import "strings"

// Scope narrows which probes are eligible for a run. GlobalpingMagic feeds
// the Globalping "magic" location field directly; Countries is the
// post-filter for providers (Check-Host) that cannot target locations at
// creation time. An empty Countries list with CloudOnly set means the
// provider has no way to honor the scope and must sit the run out.
type Scope struct {
	Key             string
	Label           string
	GlobalpingMagic string
	Countries       []string
	CloudOnly       bool
}

var scopeList = []Scope{
	{Key: "global", Label: "Global"},
	{Key: "brazil", Label: "Brasil", GlobalpingMagic: "BR", Countries: []string{"br"}},
	{Key: "south-america", Label: "América do Sul", GlobalpingMagic: "South America",
		Countries: []string{"br", "ar", "cl", "co", "pe", "uy", "py", "bo", "ec", "ve"}},
	{Key: "north-america", Label: "América do Norte", GlobalpingMagic: "North America",
		Countries: []string{"us", "ca", "mx"}},
	{Key: "europe", Label: "Europa", GlobalpingMagic: "Europe",
		Countries: []string{"de", "fr", "gb", "nl", "es", "it", "pl", "ch", "se", "pt", "at", "cz", "fi", "ie", "no", "dk", "be", "bg", "ro", "hu", "rs", "ua", "md", "lt", "lv", "ee", "sk", "si", "gr", "tr", "ru"}},
	{Key: "asia", Label: "Ásia", GlobalpingMagic: "Asia",
		Countries: []string{"jp", "sg", "in", "hk", "kr", "th", "vn", "my", "id", "ph", "tw", "cn", "il", "ae", "kz"}},
	{Key: "cloud", Label: "Cloud / datacenter", GlobalpingMagic: "datacenter-network", CloudOnly: true},
}

var scopesByKey = func() map[string]Scope {
	m := make(map[string]Scope, len(scopeList))
	for _, s := range scopeList {
		m[s.Key] = s
	}
	return m
}()

func LookupScope(key string) (Scope, bool) {
	s, ok := scopesByKey[strings.ToLower(strings.TrimSpace(key))]
	return s, ok
}

func Scopes() []Scope {
	return scopeList
}

func (s Scope) IsGlobal() bool {
	return s.Key == "global"
}

// AllowsCountry reports whether a probe in the given ISO country code is
// inside the scope. The empty code is rejected for non-global scopes: if a
// provider did not say where a probe sits, it cannot be proven in scope.
func (s Scope) AllowsCountry(code string) bool {
	if s.IsGlobal() {
		return true
	}
	if s.CloudOnly {
		return false
	}
	code = strings.ToLower(code)
	for _, c := range s.Countries {
		if c == code {
			return true
		}
	}
	return false
}
