package browser

import (
	"context"

	"github.com/Zuo-Peng/chatsweep/internal/credential"
)

const storageItemsJS = `function storageItems(area, keys) {
	const out = {};
	let store;
	try { store = window[area]; } catch (e) { return out; }
	if (!store) return out;
	for (const k of keys) {
		try {
			const v = store.getItem(k);
			if (v) out[k] = v;
		} catch (e) {}
	}
	return out;
}`

const globalsJS = `function stringifyGlobals(names) {
	const out = {};
	for (const n of names) {
		try {
			if (window[n]) out[n] = JSON.stringify(window[n]);
		} catch (e) {}
	}
	return out;
}`

// State reads credential sources out of a Page.
type State struct {
	Page Page
}

var _ credential.PageState = State{}

func (s State) Cookies(ctx context.Context) ([]credential.Cookie, error) {
	return s.Page.Cookies(ctx)
}

func (s State) StorageItems(ctx context.Context, area credential.StorageArea, keys []string) (map[string]string, error) {
	out := map[string]string{}
	if err := s.Page.Eval(ctx, Call(storageItemsJS, string(area), keys), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s State) Globals(ctx context.Context, names []string) (map[string]string, error) {
	out := map[string]string{}
	if err := s.Page.Eval(ctx, Call(globalsJS, names), &out); err != nil {
		return nil, err
	}
	return out, nil
}
