package extract

// criticalCSSScript runs in the page and resolves to the CSS text covering
// everything rendered inside the initial viewport. Same-origin stylesheets
// are walked rule by rule; rules whose selectors match no above-the-fold
// element are dropped. Font-face and keyframe rules are kept whenever any
// rule survived, since their usage cannot be matched against elements.
const criticalCSSScript = `
(() => {
	const viewportHeight = window.innerHeight;
	const viewportWidth = window.innerWidth;

	const aboveTheFold = (el) => {
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 && rect.height === 0) return false;
		return rect.top < viewportHeight && rect.bottom > 0 &&
			rect.left < viewportWidth && rect.right > 0;
	};

	const matchesCritical = (selector) => {
		let elements;
		try {
			elements = document.querySelectorAll(selector);
		} catch (e) {
			return false;
		}
		for (const el of elements) {
			if (aboveTheFold(el)) return true;
		}
		return false;
	};

	const critical = [];
	const support = [];

	const visit = (rule) => {
		if (rule.type === CSSRule.STYLE_RULE) {
			const selectors = rule.selectorText.split(',');
			const kept = selectors.filter((s) => matchesCritical(s.trim()));
			if (kept.length > 0) {
				critical.push(kept.join(',') + '{' + rule.style.cssText + '}');
			}
		} else if (rule.type === CSSRule.MEDIA_RULE) {
			const inner = [];
			for (const child of rule.cssRules) {
				if (child.type === CSSRule.STYLE_RULE) {
					const kept = child.selectorText.split(',')
						.filter((s) => matchesCritical(s.trim()));
					if (kept.length > 0) {
						inner.push(kept.join(',') + '{' + child.style.cssText + '}');
					}
				}
			}
			if (inner.length > 0) {
				critical.push('@media ' + rule.media.mediaText + '{' + inner.join('') + '}');
			}
		} else if (rule.type === CSSRule.FONT_FACE_RULE ||
			rule.type === CSSRule.KEYFRAMES_RULE) {
			support.push(rule.cssText);
		}
	};

	for (const sheet of document.styleSheets) {
		let rules;
		try {
			rules = sheet.cssRules;
		} catch (e) {
			// Cross-origin stylesheet; skip.
			continue;
		}
		for (const rule of rules) {
			visit(rule);
		}
	}

	if (critical.length === 0) {
		return '';
	}
	return support.join('') + critical.join('');
})()
`
