package automate

const findRowJS = `function findRow(id) {
	const link = document.querySelector('a[href*="/c/' + id + '"]');
	if (!link) return false;
	link.scrollIntoView({ behavior: 'auto', block: 'nearest' });
	return true;
}`

const hoverRowJS = `function hoverRow(id) {
	const link = document.querySelector('a[href*="/c/' + id + '"]');
	if (!link) return false;
	link.dispatchEvent(new MouseEvent('mouseover', { bubbles: true, view: window }));
	link.dispatchEvent(new MouseEvent('mouseenter', { bubbles: true, view: window }));
	if (link.parentElement) {
		link.parentElement.dispatchEvent(new MouseEvent('mouseover', { bubbles: true, view: window }));
	}
	return true;
}`

const openOptionsJS = `function openOptions() {
	const btn = Array.from(document.querySelectorAll('button')).find(b => {
		const label = (b.getAttribute('aria-label') || '').toLowerCase();
		return label.includes('conversation') && label.includes('option') && b.offsetParent !== null;
	});
	if (!btn) return false;
	btn.click();
	btn.dispatchEvent(new PointerEvent('pointerdown', { bubbles: true, cancelable: true }));
	btn.dispatchEvent(new PointerEvent('pointerup', { bubbles: true, cancelable: true }));
	return true;
}`

const contextMenuJS = `function openContextMenu(id) {
	const link = document.querySelector('a[href*="/c/' + id + '"]');
	if (!link) return false;
	link.dispatchEvent(new MouseEvent('contextmenu', { bubbles: true, cancelable: true, view: window, buttons: 2 }));
	return true;
}`

const clickDeleteOptionJS = `function clickDeleteOption(maxClimb) {
	const visible = Array.from(document.querySelectorAll('*')).filter(el => el.offsetParent !== null);
	for (const el of visible) {
		if ((el.innerText || '').toLowerCase().trim() !== 'delete') continue;
		let cur = el;
		for (let depth = 0; cur && depth < maxClimb; depth++) {
			const cls = (cur.className || '').toString();
			const role = cur.getAttribute && cur.getAttribute('role');
			if (cur.onclick || cur.tagName === 'BUTTON' || cur.tagName === 'A' ||
				role === 'button' || role === 'menuitem' ||
				cls.includes('cursor-pointer') || cls.includes('hover')) {
				cur.click();
				return true;
			}
			cur = cur.parentElement;
		}
	}
	return false;
}`

const clickDeleteTextJS = `function clickDeleteText() {
	const res = document.evaluate("//*[text()='Delete']", document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null);
	if (!res.singleNodeValue) return false;
	for (let p = res.singleNodeValue.parentElement; p && p !== document.body; p = p.parentElement) {
		const role = p.getAttribute('role');
		if (p.onclick || role === 'button' || role === 'menuitem') {
			p.click();
			return true;
		}
	}
	return false;
}`

const confirmJS = `function confirmDelete() {
	const btn = Array.from(document.querySelectorAll('button')).find(b => {
		const t = (b.textContent || '').toLowerCase().trim();
		return t === 'ok' || t === 'delete' || (t.includes('confirm') && t.includes('delete'));
	});
	if (!btn) return false;
	btn.click();
	return true;
}`
