package evm

// CertificateABI is the variant-aware certificate contract surface.
const CertificateABI = `[
 {"type":"function","name":"mintCertificate","stateMutability":"nonpayable","inputs":[
   {"name":"to","type":"address"},{"name":"uri","type":"string"},{"name":"dataHash","type":"string"},
   {"name":"tType","type":"uint8"},{"name":"coOwner","type":"address"},{"name":"value","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"hashToTokenId","stateMutability":"view","inputs":[{"name":"hash","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"tokenURI","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
 {"type":"function","name":"tokenDetails","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[
   {"name":"tType","type":"uint8"},{"name":"coOwner","type":"address"},{"name":"value","type":"uint256"},{"name":"isRedeemed","type":"bool"}]},
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"tokenOfOwnerByIndex","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"safeTransferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"burn","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"redeem","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
 {"type":"event","name":"Transfer","anonymous":false,"inputs":[
   {"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}]}
]`

// LegacyMintABI is the pre-variant mint entry point (Standard only).
const LegacyMintABI = `[
 {"type":"function","name":"mintCertificate","stateMutability":"nonpayable","inputs":[
   {"name":"to","type":"address"},{"name":"uri","type":"string"},{"name":"dataHashBytes","type":"string"}],"outputs":[]}
]`
