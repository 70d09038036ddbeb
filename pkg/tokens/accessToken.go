package tokens

func SignAccess(claims AccessClaims, secret []byte) (string, error) {
	return sign(claims, secret)
}

func AccessClaimsFromToken(tokenStr string, accessSecret []byte) (*AccessClaims, error) {
	var claims AccessClaims
	if err := parse(tokenStr, &claims, accessSecret); err != nil {
		return nil, err
	}
	return &claims, nil
}
