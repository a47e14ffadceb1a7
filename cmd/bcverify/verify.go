package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/chazu/bcverify/cache"
	"github.com/chazu/bcverify/classfile"
	"github.com/chazu/bcverify/fixture"
	"github.com/chazu/bcverify/manifest"
	"github.com/chazu/bcverify/report"
	"github.com/chazu/bcverify/verifier"
)

// verifyFixtures loads the fixtures and verifies the selected methods,
// answering from the cache where it can.
func verifyFixtures(ctx context.Context, m *manifest.Manifest, paths []string, sel selection) (*report.Report, *fixture.Set, error) {
	set, err := fixture.LoadFile(paths...)
	if err != nil {
		return nil, nil, err
	}
	log.Infof("loaded %d classes from %d fixture files", len(set.Classes), len(paths))

	var store *cache.Cache
	if m.Cache.Enabled {
		store, err = cache.Open(m.CachePath())
		if err != nil {
			log.Warningf("verdict cache disabled: %s", err)
		} else {
			defer store.Close()
		}
	}

	opts := m.Options()
	rep := report.New()
	var hierarchy cache.Sum
	if store != nil {
		hierarchy = cache.HierarchyFingerprint(set.Repo)
	}

	matched := 0
	for _, class := range set.Classes {
		if !sel.class(class.Name) {
			continue
		}
		var methods []*classfile.Method
		for _, meth := range class.Methods {
			if sel.method(meth.Name, meth.Descriptor) {
				methods = append(methods, meth)
			}
		}
		matched += len(methods)
		if len(methods) == 0 {
			continue
		}

		reports, err := verifyClass(ctx, set.Repo, class, methods, opts, store, hierarchy)
		if err != nil {
			return nil, nil, fmt.Errorf("class %s: %w", class.Name, err)
		}
		for _, mr := range reports {
			rep.Add(mr)
		}
	}
	if matched == 0 && (sel.classes != nil || sel.methods != nil) {
		return nil, nil, fmt.Errorf("no methods match the -class and -method filters")
	}
	return rep, set, nil
}

// verifyClass verifies methods of one class, in order. Cached verdicts are
// reused; fresh ones are stored back.
func verifyClass(ctx context.Context, repo *classfile.Repository, class *classfile.Class, methods []*classfile.Method, opts verifier.Options, store *cache.Cache, hierarchy cache.Sum) ([]report.MethodReport, error) {
	out := make([]report.MethodReport, len(methods))
	keys := make([]string, len(methods))

	var (
		pending []*classfile.Method
		slots   []int
	)
	for i, meth := range methods {
		if store != nil {
			keys[i] = cache.Key(cache.Fingerprint(class, meth), hierarchy, opts)
			mr, ok, err := store.Get(keys[i])
			if err != nil {
				log.Warningf("%s.%s: %s", class.Name, meth, err)
			} else if ok {
				log.Debugf("%s.%s: cached %s", class.Name, meth, mr.Status)
				out[i] = *mr
				continue
			}
		}
		pending = append(pending, meth)
		slots = append(slots, i)
	}
	if len(pending) == 0 {
		return out, nil
	}

	results, err := verifier.VerifyMethods(ctx, repo, class, pending, opts)
	if err != nil {
		return nil, err
	}
	for j, res := range results {
		i := slots[j]
		out[i] = report.FromResult(res)
		if store != nil {
			if err := store.Put(keys[i], res); err != nil {
				log.Warningf("%s.%s: %s", class.Name, res.Method, err)
			}
		}
	}
	return out, nil
}

// checkExpectations lists the methods whose verdict differs from the one
// their fixture declares. Expectations of unselected methods are skipped.
func checkExpectations(rep *report.Report, set *fixture.Set) []string {
	var mismatches []string
	seen := make(map[string]bool)
	for _, mr := range rep.Methods {
		key := mr.Class + "." + mr.Method + mr.Descriptor
		want, ok := set.Expect[key]
		if !ok {
			continue
		}
		seen[key] = true
		if mr.Status != want {
			mismatches = append(mismatches, fmt.Sprintf("%s: %s, expected %s", key, mr.Status, want))
		}
	}
	var unchecked []string
	for key := range set.Expect {
		if !seen[key] {
			unchecked = append(unchecked, key)
		}
	}
	sort.Strings(unchecked)
	for _, key := range unchecked {
		log.Debugf("%s: expectation not exercised by this run", key)
	}
	return mismatches
}
