package perception

import (
	"context"

	"go.uber.org/zap"
)

// consentDismissJS looks for a cookie/consent banner and clicks its accept
// control in-page. Runs every step because banners reappear after
// navigations and tab switches. Returns the clicked label, or "" when no
// banner was found.
const consentDismissJS = `(() => {
	const containers = document.querySelectorAll(
		'[id*="cookie" i], [class*="cookie" i], [id*="consent" i], [class*="consent" i], ' +
		'[id*="gdpr" i], [class*="gdpr" i], [aria-label*="cookie" i], [aria-label*="consent" i]'
	);
	const accept = /^(accept|accept all|allow|allow all|agree|i agree|got it|ok|okay|consent)/i;
	for (const box of containers) {
		const rect = box.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) continue;
		for (const btn of box.querySelectorAll('button, [role="button"], a, input[type="submit"]')) {
			const label = ((btn.innerText || btn.value || '') + ' ' + (btn.getAttribute('aria-label') || '')).trim();
			if (!accept.test(label)) continue;
			const r = btn.getBoundingClientRect();
			if (r.width === 0 || r.height === 0) continue;
			btn.click();
			return label.slice(0, 60);
		}
	}
	return '';
})()`

// DismissConsent scans the page for a cookie/consent banner and clicks its
// accept control when one is visible. A failed scan is not an error worth
// stopping for; the oracle still sees the banner and can act on it itself.
func (p *Perceiver) DismissConsent(ctx context.Context) (bool, error) {
	var clicked string
	if err := p.driver.EvaluateInto(ctx, consentDismissJS, &clicked); err != nil {
		return false, err
	}
	if clicked == "" {
		return false, nil
	}
	p.logger.Info("Consent banner dismissed.", zap.String("control", clicked))
	return true, nil
}
