package platform

import (
	"regexp"
	"strconv"
)

type release struct {
	first, last int
	id          string
}

// Windows 10 builds, from the first preview build to the release build.
var windows10Releases = []release{
	{9841, 10240, "1507"},
	{10525, 10586, "1511"},
	{11082, 14393, "1607"},
	{14901, 15063, "1703"},
	{16170, 16299, "1709"},
	{16353, 17134, "1803"},
	{17604, 17763, "1809"},
	{18204, 18362, "1903"},
	{18836, 18908, "20H1"},
}

// ReleaseID maps a Windows 10 build number to its release id.
func ReleaseID(build int) (string, bool) {
	for _, r := range windows10Releases {
		if build >= r.first && build <= r.last {
			return r.id, true
		}
	}
	return "", false
}

var verOutput = regexp.MustCompile(`\[Version (\d+)\.(\d+)\.(\d+)(?:\.\d+)?\]`)

// parseVer reads the output of `cmd /c ver`, e.g.
// "Microsoft Windows [Version 10.0.17763.1]". The build number is the
// primary version; "major.minor.build" and the release id become aliases.
func parseVer(out string) (Runtime, bool) {
	m := verOutput.FindStringSubmatch(out)
	if m == nil {
		return Runtime{}, false
	}
	rt := Runtime{OS: "windows", Version: m[3]}
	rt.Aliases = append(rt.Aliases, m[1]+"."+m[2]+"."+m[3])
	if build, err := strconv.Atoi(m[3]); err == nil {
		if id, ok := ReleaseID(build); ok {
			rt.Aliases = append(rt.Aliases, id)
		}
	}
	return rt, true
}
