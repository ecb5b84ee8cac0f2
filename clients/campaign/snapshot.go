package campaign

import (
	"sort"

	remnawave "github.com/Asort97/promoBot/clients/remnaWave"
)

// Snapshot counts the accounts of one tag at the moment of a listing.
type Snapshot struct {
	Tag              string
	Total            int
	Active           int
	Used             int
	UsedTrafficBytes int64
}

func (s *Snapshot) add(acc remnawave.Account) {
	s.Total++
	if acc.Used() {
		s.Used++
	} else {
		s.Active++
	}
	s.UsedTrafficBytes += acc.UsedTrafficBytes
}

// Overview is every campaign plus the sum over all of them.
type Overview struct {
	Campaigns []Snapshot
	Totals    Snapshot
}

// Summarize groups accounts by tag, sorted by tag. Accounts without a tag are ignored.
func Summarize(accounts []remnawave.Account) []Snapshot {
	byTag := make(map[string]*Snapshot)
	for _, acc := range accounts {
		if acc.Tag == "" {
			continue
		}
		s, ok := byTag[acc.Tag]
		if !ok {
			s = &Snapshot{Tag: acc.Tag}
			byTag[acc.Tag] = s
		}
		s.add(acc)
	}

	out := make([]Snapshot, 0, len(byTag))
	for _, s := range byTag {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// SnapshotOf counts the accounts carrying exactly tag.
func SnapshotOf(tag string, accounts []remnawave.Account) Snapshot {
	s := Snapshot{Tag: tag}
	for _, acc := range accounts {
		if acc.Tag == tag {
			s.add(acc)
		}
	}
	return s
}

func overview(accounts []remnawave.Account) Overview {
	o := Overview{Campaigns: Summarize(accounts)}
	for _, s := range o.Campaigns {
		o.Totals.Total += s.Total
		o.Totals.Active += s.Active
		o.Totals.Used += s.Used
		o.Totals.UsedTrafficBytes += s.UsedTrafficBytes
	}
	return o
}
