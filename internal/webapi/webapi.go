package webapi

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/cryguy/winter/internal/core"
	"github.com/cryguy/winter/internal/eventloop"
)

// webAPIsJS defines the Fetch Standard classes scripts see (Headers, URL,
// URLSearchParams, Request, Response, TextEncoder, TextDecoder). Bodies are
// held whole in memory as a string or a Uint8Array.
const webAPIsJS = `
class Headers {
	constructor(init) {
		this._map = {};
		if (!init) return;
		if (init instanceof Headers) {
			for (const k of Object.keys(init._map)) this._map[k] = init._map[k].slice();
		} else if (Array.isArray(init) || typeof init[Symbol.iterator] === 'function') {
			for (const [k, v] of init) this.append(k, v);
		} else {
			for (const [k, v] of Object.entries(init)) this.set(k, v);
		}
	}
	get(name) {
		const vs = this._map[String(name).toLowerCase()];
		return vs === undefined ? null : vs.join(', ');
	}
	set(name, value) { this._map[String(name).toLowerCase()] = [String(value)]; }
	has(name) { return String(name).toLowerCase() in this._map; }
	delete(name) { delete this._map[String(name).toLowerCase()]; }
	append(name, value) {
		const key = String(name).toLowerCase();
		if (!this._map[key]) this._map[key] = [];
		this._map[key].push(String(value));
	}
	getSetCookie() { return (this._map['set-cookie'] || []).slice(); }
	forEach(cb, thisArg) {
		for (const [k, v] of this.entries()) cb.call(thisArg, v, k, this);
	}
	entries() {
		return Object.keys(this._map).sort().map(k => [k, this._map[k].join(', ')])[Symbol.iterator]();
	}
	keys() { return Object.keys(this._map).sort()[Symbol.iterator](); }
	values() { return Array.from(this.entries(), e => e[1])[Symbol.iterator](); }
	get [Symbol.toStringTag]() { return 'Headers'; }
	[Symbol.iterator]() { return this.entries(); }
}

function __decodeQuery(s) {
	const out = [];
	if (s.startsWith('?')) s = s.slice(1);
	if (!s) return out;
	for (const pair of s.split('&')) {
		if (!pair) continue;
		const [k, ...rest] = pair.split('=');
		const dec = x => decodeURIComponent(x.replace(/\+/g, '%20'));
		out.push([dec(k), dec(rest.join('='))]);
	}
	return out;
}

class URLSearchParams {
	constructor(init) {
		this._entries = [];
		this._url = null;
		if (init instanceof URLSearchParams) {
			this._entries = init._entries.map(e => [e[0], e[1]]);
		} else if (Array.isArray(init)) {
			for (const pair of init) this._entries.push([String(pair[0]), String(pair[1])]);
		} else if (typeof init === 'object' && init !== null) {
			for (const [k, v] of Object.entries(init)) this._entries.push([k, String(v)]);
		} else if (init !== undefined && init !== null) {
			this._entries = __decodeQuery(String(init));
		}
	}
	_update() {
		if (!this._url) return;
		const s = this.toString();
		this._url._search = s ? '?' + s : '';
		this._url._buildHref();
	}
	get(name) {
		const e = this._entries.find(([k]) => k === name);
		return e ? e[1] : null;
	}
	getAll(name) { return this._entries.filter(([k]) => k === name).map(e => e[1]); }
	has(name) { return this._entries.some(([k]) => k === name); }
	set(name, value) {
		const i = this._entries.findIndex(([k]) => k === name);
		if (i === -1) {
			this._entries.push([String(name), String(value)]);
		} else {
			this._entries[i][1] = String(value);
			this._entries = this._entries.filter(([k], j) => k !== name || j === i);
		}
		this._update();
	}
	append(name, value) { this._entries.push([String(name), String(value)]); this._update(); }
	delete(name) { this._entries = this._entries.filter(([k]) => k !== name); this._update(); }
	sort() { this._entries.sort((a, b) => (a[0] < b[0] ? -1 : a[0] > b[0] ? 1 : 0)); this._update(); }
	get size() { return this._entries.length; }
	toString() {
		return this._entries.map(([k, v]) => encodeURIComponent(k) + '=' + encodeURIComponent(v)).join('&');
	}
	forEach(cb, thisArg) { for (const [k, v] of this._entries) cb.call(thisArg, v, k, this); }
	entries() { return this._entries.map(e => [e[0], e[1]])[Symbol.iterator](); }
	keys() { return this._entries.map(e => e[0])[Symbol.iterator](); }
	values() { return this._entries.map(e => e[1])[Symbol.iterator](); }
	get [Symbol.toStringTag]() { return 'URLSearchParams'; }
	[Symbol.iterator]() { return this.entries(); }
}

class URL {
	constructor(input, base) {
		this._assign(String(input), base === undefined || base === null ? '' : String(base));
	}
	_assign(input, base) {
		const p = JSON.parse(__parseURL(input, base));
		if (p.error) throw new TypeError(p.error);
		this._protocol = p.protocol;
		this._hostname = p.hostname;
		this._port = p.port;
		this._pathname = p.pathname;
		this._search = p.search;
		this._hash = p.hash;
		this._username = p.username || '';
		this._password = p.password || '';
		this._buildHref();
		this._searchParams = new URLSearchParams(this._search);
		this._searchParams._url = this;
	}
	_buildHref() {
		let userInfo = '';
		if (this._username) userInfo = this._username + (this._password ? ':' + this._password : '') + '@';
		this._host = this._port ? this._hostname + ':' + this._port : this._hostname;
		this._origin = this._protocol + '//' + this._host;
		this._href = this._protocol + '//' + userInfo + this._host + this._pathname + this._search + this._hash;
	}
	get href() { return this._href; }
	set href(v) { this._assign(String(v), ''); }
	get protocol() { return this._protocol; }
	set protocol(v) { v = String(v); this._protocol = v.endsWith(':') ? v : v + ':'; this._buildHref(); }
	get hostname() { return this._hostname; }
	set hostname(v) { this._hostname = String(v); this._buildHref(); }
	get port() { return this._port; }
	set port(v) { this._port = String(v); this._buildHref(); }
	get host() { return this._host; }
	get origin() { return this._origin; }
	get pathname() { return this._pathname; }
	set pathname(v) { v = String(v); this._pathname = v.startsWith('/') ? v : '/' + v; this._buildHref(); }
	get search() { return this._search; }
	set search(v) {
		v = String(v);
		this._search = v && !v.startsWith('?') ? '?' + v : v;
		this._buildHref();
		this._searchParams._entries = __decodeQuery(this._search);
	}
	get hash() { return this._hash; }
	set hash(v) { v = String(v); this._hash = v && !v.startsWith('#') ? '#' + v : v; this._buildHref(); }
	get username() { return this._username; }
	set username(v) { this._username = String(v); this._buildHref(); }
	get password() { return this._password; }
	set password(v) { this._password = String(v); this._buildHref(); }
	get searchParams() { return this._searchParams; }
	toString() { return this._href; }
	toJSON() { return this._href; }
	get [Symbol.toStringTag]() { return 'URL'; }
	static canParse(input, base) {
		try { new URL(input, base); return true; } catch (e) { return false; }
	}
}

class TextEncoder {
	get encoding() { return 'utf-8'; }
	encode(str) { return __utf8Encode(str === undefined ? '' : String(str)); }
	encodeInto(source, destination) {
		const bytes = __utf8Encode(String(source));
		const written = Math.min(bytes.length, destination.length);
		destination.set(bytes.subarray(0, written));
		return { read: __utf8Decode(bytes.subarray(0, written)).length, written };
	}
	get [Symbol.toStringTag]() { return 'TextEncoder'; }
}

class TextDecoder {
	constructor(label, options) {
		label = (label || 'utf-8').toLowerCase().trim();
		if (label === 'utf8' || label === 'unicode-1-1-utf-8') label = 'utf-8';
		if (label !== 'utf-8') throw new RangeError('The "' + label + '" encoding is not supported');
		this._fatal = !!(options && options.fatal);
		this._ignoreBOM = !!(options && options.ignoreBOM);
	}
	get encoding() { return 'utf-8'; }
	get fatal() { return this._fatal; }
	get ignoreBOM() { return this._ignoreBOM; }
	decode(buf) {
		let bytes = __toBytes(buf) || new Uint8Array(0);
		if (!this._ignoreBOM && bytes.length >= 3 && bytes[0] === 0xEF && bytes[1] === 0xBB && bytes[2] === 0xBF) {
			bytes = bytes.subarray(3);
		}
		return __utf8Decode(bytes, this._fatal);
	}
	get [Symbol.toStringTag]() { return 'TextDecoder'; }
}

class Body {
	_initBody(body, headers) {
		this._bodyUsed = false;
		if (body === undefined || body === null) { this._body = null; return; }
		if (typeof body === 'string') {
			this._body = body;
			if (!headers.has('content-type')) headers.set('content-type', 'text/plain;charset=UTF-8');
		} else if (body instanceof URLSearchParams) {
			this._body = body.toString();
			if (!headers.has('content-type')) headers.set('content-type', 'application/x-www-form-urlencoded;charset=UTF-8');
		} else if (body instanceof ArrayBuffer || ArrayBuffer.isView(body)) {
			this._body = __toBytes(body).slice();
		} else {
			this._body = String(body);
			if (!headers.has('content-type')) headers.set('content-type', 'text/plain;charset=UTF-8');
		}
	}
	get bodyUsed() { return this._bodyUsed; }
	_consume() {
		if (this._bodyUsed) return Promise.reject(new TypeError('Body has already been used'));
		this._bodyUsed = true;
		return Promise.resolve(this._body);
	}
	_bytes() {
		const b = this._body;
		if (b === null) return new Uint8Array(0);
		return typeof b === 'string' ? __utf8Encode(b) : b;
	}
	text() {
		return this._consume().then(b => b === null ? '' : (typeof b === 'string' ? b : __utf8Decode(b)));
	}
	json() { return this.text().then(t => JSON.parse(t)); }
	bytes() { return this._consume().then(() => this._bytes().slice()); }
	arrayBuffer() { return this.bytes().then(u => u.buffer); }
}

const __forbiddenMethods = ['CONNECT', 'TRACE', 'TRACK'];

class Request extends Body {
	constructor(input, init) {
		super();
		init = init || {};
		let body = init.body;
		if (input instanceof Request) {
			this.url = input.url;
			this.method = input.method;
			this.headers = new Headers(input.headers);
			if (body === undefined && input._body !== null) body = input._body;
		} else {
			this.url = new URL(String(input)).href;
			this.method = 'GET';
			this.headers = new Headers();
		}
		if (init.method) this.method = String(init.method).toUpperCase();
		if (init.headers) this.headers = new Headers(init.headers);
		if (__forbiddenMethods.indexOf(this.method) !== -1) throw new TypeError('Forbidden method: ' + this.method);
		if (body !== undefined && body !== null && (this.method === 'GET' || this.method === 'HEAD')) {
			throw new TypeError('Request with GET/HEAD method cannot have body.');
		}
		this.redirect = init.redirect || 'follow';
		this.signal = init.signal || null;
		this.cf = init.cf || {};
		this._initBody(body, this.headers);
	}
	clone() {
		if (this._bodyUsed) throw new TypeError('Cannot clone a consumed request');
		return new Request(this);
	}
	get [Symbol.toStringTag]() { return 'Request'; }
}

const __statusText = {
	200: 'OK', 201: 'Created', 202: 'Accepted', 204: 'No Content',
	301: 'Moved Permanently', 302: 'Found', 303: 'See Other', 304: 'Not Modified',
	307: 'Temporary Redirect', 308: 'Permanent Redirect',
	400: 'Bad Request', 401: 'Unauthorized', 403: 'Forbidden', 404: 'Not Found',
	405: 'Method Not Allowed', 409: 'Conflict', 413: 'Payload Too Large', 429: 'Too Many Requests',
	500: 'Internal Server Error', 502: 'Bad Gateway', 503: 'Service Unavailable', 504: 'Gateway Timeout',
};

class Response extends Body {
	constructor(body, init) {
		super();
		init = init || {};
		this.status = init.status !== undefined ? Number(init.status) : 200;
		if (this.status < 200 || this.status > 599) {
			throw new RangeError('Invalid status code: ' + init.status);
		}
		this.statusText = init.statusText !== undefined ? String(init.statusText) : (__statusText[this.status] || '');
		this.headers = new Headers(init.headers);
		this.type = 'default';
		this.url = '';
		this.redirected = false;
		this._initBody(body, this.headers);
	}
	get ok() { return this.status >= 200 && this.status < 300; }
	clone() {
		if (this._bodyUsed) throw new TypeError('Cannot clone a consumed response');
		return new Response(this._body, { status: this.status, statusText: this.statusText, headers: this.headers });
	}
	static json(data, init) {
		init = init || {};
		const headers = new Headers(init.headers);
		if (!headers.has('content-type')) headers.set('content-type', 'application/json');
		return new Response(JSON.stringify(data), { status: init.status, statusText: init.statusText, headers });
	}
	static redirect(url, status) {
		status = status || 302;
		if ([301, 302, 303, 307, 308].indexOf(status) === -1) {
			throw new RangeError('Invalid redirect status: ' + status);
		}
		return new Response(null, { status, headers: { location: new URL(String(url)).href } });
	}
	get [Symbol.toStringTag]() { return 'Response'; }
}

globalThis.Headers = Headers;
globalThis.URL = URL;
globalThis.URLSearchParams = URLSearchParams;
globalThis.TextEncoder = TextEncoder;
globalThis.TextDecoder = TextDecoder;
globalThis.Request = Request;
globalThis.Response = Response;
`

// URLParsed is the JSON shape __parseURL hands to the JS URL class.
type URLParsed struct {
	Href     string `json:"href"`
	Protocol string `json:"protocol"`
	Hostname string `json:"hostname"`
	Port     string `json:"port"`
	Pathname string `json:"pathname"`
	Search   string `json:"search"`
	Hash     string `json:"hash"`
	Origin   string `json:"origin"`
	Host     string `json:"host"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// ParseURL resolves rawURL against base (if non-empty) and splits it into
// the components exposed by the JS URL class. Relative URLs without a base
// are rejected.
func ParseURL(rawURL, base string) (*URLParsed, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %s", rawURL)
	}
	if base != "" {
		b, err := url.Parse(base)
		if err != nil || b.Scheme == "" {
			return nil, fmt.Errorf("invalid base URL: %s", base)
		}
		u = b.ResolveReference(u)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("invalid URL: %s", rawURL)
	}

	p := &URLParsed{
		Protocol: u.Scheme + ":",
		Hostname: u.Hostname(),
		Port:     u.Port(),
		Pathname: u.EscapedPath(),
	}
	if p.Pathname == "" {
		p.Pathname = "/"
	}
	p.Host = p.Hostname
	if p.Port != "" {
		p.Host += ":" + p.Port
	}
	p.Origin = p.Protocol + "//" + p.Host
	if u.RawQuery != "" {
		p.Search = "?" + u.RawQuery
	}
	if u.Fragment != "" {
		p.Hash = "#" + u.EscapedFragment()
	}
	userInfo := ""
	if u.User != nil {
		p.Username = u.User.Username()
		p.Password, _ = u.User.Password()
		userInfo = u.User.String() + "@"
	}
	p.Href = p.Protocol + "//" + userInfo + p.Host + p.Pathname + p.Search + p.Hash
	return p, nil
}

// SetupWebAPIs registers the Go-backed URL parser and evaluates the class
// definitions. Requires SetupEncoding to have run first.
func SetupWebAPIs(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.RegisterFunc("__parseURL", func(rawURL, base string) (string, error) {
		parsed, err := ParseURL(rawURL, base)
		if err != nil {
			return fmt.Sprintf(`{"error":%q}`, err.Error()), nil
		}
		data, _ := json.Marshal(parsed)
		return string(data), nil
	}); err != nil {
		return err
	}
	if err := rt.Eval(webAPIsJS); err != nil {
		return fmt.Errorf("evaluating webapi.js: %w", err)
	}
	return nil
}
