package browser

import (
	"strings"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

var namedKeys = map[string]string{
	"enter":      kb.Enter,
	"tab":        kb.Tab,
	"escape":     kb.Escape,
	"esc":        kb.Escape,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"arrowup":    kb.ArrowUp,
	"arrowdown":  kb.ArrowDown,
	"arrowleft":  kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
	"home":       kb.Home,
	"end":        kb.End,
	"pageup":     kb.PageUp,
	"pagedown":   kb.PageDown,
	"space":      " ",
}

var modifierKeys = map[string]input.Modifier{
	"control": input.ModifierCtrl,
	"ctrl":    input.ModifierCtrl,
	"alt":     input.ModifierAlt,
	"shift":   input.ModifierShift,
	"meta":    input.ModifierMeta,
	"command": input.ModifierMeta,
}

// keyEvent translates a key description such as "Enter", "a" or
// "Control+A" into the chromedp key sequence and modifiers.
func keyEvent(key string) (string, []input.Modifier) {
	parts := strings.Split(key, "+")
	if len(parts) == 1 || key == "+" {
		return keyValue(key), nil
	}

	var mods []input.Modifier
	for _, p := range parts[:len(parts)-1] {
		if m, ok := modifierKeys[strings.ToLower(strings.TrimSpace(p))]; ok {
			mods = append(mods, m)
		}
	}
	return keyValue(parts[len(parts)-1]), mods
}

func keyValue(key string) string {
	if v, ok := namedKeys[strings.ToLower(key)]; ok {
		return v
	}
	return key
}

func pressAction(key string) chromedp.Action {
	value, mods := keyEvent(key)
	if len(mods) == 0 {
		return chromedp.KeyEvent(value)
	}
	return chromedp.KeyEvent(value, chromedp.KeyModifiers(mods...))
}
