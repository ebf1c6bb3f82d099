package webapi

import (
	"fmt"

	"github.com/cryguy/winter/internal/core"
	"github.com/cryguy/winter/internal/eventloop"
)

// encodingJS defines the base64 codec, atob/btoa and the byte helpers
// body handling relies on: __toBytes, __bytesToB64, __b64ToBytes,
// __utf8Encode and __utf8Decode. Bytes never cross into Go as a binary
// string; the engine boundary stops at NUL.
const encodingJS = `
(function() {
	const alphabet = 'ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/';
	const lookup = new Int16Array(128).fill(-1);
	for (let i = 0; i < alphabet.length; i++) lookup[alphabet.charCodeAt(i)] = i;

	const invalid = function() { return new TypeError('The string to be decoded is not correctly encoded'); };

	globalThis.__bytesToB64 = function(bytes) {
		const out = [];
		const n = bytes.length;
		let i = 0;
		for (; i + 2 < n; i += 3) {
			const v = (bytes[i] << 16) | (bytes[i + 1] << 8) | bytes[i + 2];
			out.push(alphabet[v >> 18], alphabet[(v >> 12) & 63], alphabet[(v >> 6) & 63], alphabet[v & 63]);
		}
		if (n - i === 1) {
			const v = bytes[i] << 16;
			out.push(alphabet[v >> 18], alphabet[(v >> 12) & 63], '==');
		} else if (n - i === 2) {
			const v = (bytes[i] << 16) | (bytes[i + 1] << 8);
			out.push(alphabet[v >> 18], alphabet[(v >> 12) & 63], alphabet[(v >> 6) & 63], '=');
		}
		return out.join('');
	};

	// Forgiving decode: ASCII whitespace is ignored and padding is optional.
	globalThis.__b64ToBytes = function(data) {
		let s = String(data).replace(/[\t\n\f\r ]/g, '');
		if (s.length % 4 === 0) s = s.replace(/={1,2}$/, '');
		if (s.length % 4 === 1) throw invalid();
		const bytes = new Uint8Array((s.length * 3) >> 2);
		let acc = 0, bits = 0, j = 0;
		for (let i = 0; i < s.length; i++) {
			const c = s.charCodeAt(i);
			const v = c < 128 ? lookup[c] : -1;
			if (v < 0) throw invalid();
			acc = ((acc << 6) | v) & 0xffff;
			bits += 6;
			if (bits >= 8) {
				bits -= 8;
				bytes[j++] = (acc >> bits) & 0xff;
			}
		}
		return bytes;
	};

	globalThis.btoa = function(data) {
		if (arguments.length < 1) throw new TypeError('btoa requires 1 argument');
		const s = String(data);
		const bytes = new Uint8Array(s.length);
		for (let i = 0; i < s.length; i++) {
			const c = s.charCodeAt(i);
			if (c > 0xff) throw new TypeError('string contains characters outside of the Latin1 range');
			bytes[i] = c;
		}
		return __bytesToB64(bytes);
	};

	globalThis.atob = function(data) {
		if (arguments.length < 1) throw new TypeError('atob requires 1 argument');
		const bytes = __b64ToBytes(data);
		const parts = [];
		for (let i = 0; i < bytes.length; i += 8192) {
			parts.push(String.fromCharCode.apply(null, bytes.subarray(i, Math.min(i + 8192, bytes.length))));
		}
		return parts.join('');
	};

	globalThis.__toBytes = function(data) {
		if (data === undefined || data === null) return null;
		if (data instanceof Uint8Array) return data;
		if (data instanceof ArrayBuffer) return new Uint8Array(data);
		if (ArrayBuffer.isView(data)) return new Uint8Array(data.buffer, data.byteOffset, data.byteLength);
		return new Uint8Array(data);
	};

	globalThis.__utf8Encode = function(str) {
		const buf = [];
		for (let i = 0; i < str.length; i++) {
			let c = str.charCodeAt(i);
			if (c >= 0xd800 && c <= 0xdbff && i + 1 < str.length) {
				const n = str.charCodeAt(i + 1);
				if (n >= 0xdc00 && n <= 0xdfff) {
					c = ((c - 0xd800) << 10) + (n - 0xdc00) + 0x10000;
					i++;
				} else {
					c = 0xfffd;
				}
			} else if (c >= 0xd800 && c <= 0xdfff) {
				c = 0xfffd;
			}
			if (c < 0x80) buf.push(c);
			else if (c < 0x800) buf.push(0xc0 | (c >> 6), 0x80 | (c & 0x3f));
			else if (c < 0x10000) buf.push(0xe0 | (c >> 12), 0x80 | ((c >> 6) & 0x3f), 0x80 | (c & 0x3f));
			else buf.push(0xf0 | (c >> 18), 0x80 | ((c >> 12) & 0x3f), 0x80 | ((c >> 6) & 0x3f), 0x80 | (c & 0x3f));
		}
		return new Uint8Array(buf);
	};

	globalThis.__utf8Decode = function(bytes, fatal) {
		const out = [];
		let i = 0;
		const bad = function() {
			if (fatal) throw new TypeError('The encoded data was not valid utf-8');
			out.push(0xfffd);
			i++;
		};
		const cont = function(k) { return i + k < bytes.length && (bytes[i + k] & 0xc0) === 0x80; };
		while (i < bytes.length) {
			const b = bytes[i];
			if (b < 0x80) {
				out.push(b); i++;
			} else if ((b & 0xe0) === 0xc0 && cont(1)) {
				out.push(((b & 0x1f) << 6) | (bytes[i + 1] & 0x3f)); i += 2;
			} else if ((b & 0xf0) === 0xe0 && cont(1) && cont(2)) {
				out.push(((b & 0x0f) << 12) | ((bytes[i + 1] & 0x3f) << 6) | (bytes[i + 2] & 0x3f)); i += 3;
			} else if ((b & 0xf8) === 0xf0 && cont(1) && cont(2) && cont(3)) {
				out.push(((b & 0x07) << 18) | ((bytes[i + 1] & 0x3f) << 12) | ((bytes[i + 2] & 0x3f) << 6) | (bytes[i + 3] & 0x3f)); i += 4;
			} else {
				bad();
			}
		}
		let s = '';
		for (let j = 0; j < out.length; j += 4096) {
			s += String.fromCodePoint.apply(null, out.slice(j, j + 4096));
		}
		return s;
	};
})();
`

// SetupEncoding evaluates the encoding helpers. It must run before
// SetupWebAPIs.
func SetupEncoding(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.Eval(encodingJS); err != nil {
		return fmt.Errorf("evaluating encoding.js: %w", err)
	}
	return nil
}
